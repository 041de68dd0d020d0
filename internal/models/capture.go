package models

import "time"

// CapturedImage is one photo taken on the device but not yet confirmed
// uploaded. Rows are owned exclusively by the capture store: they are
// created by Enqueue and deleted only after an upload acknowledgment.
type CapturedImage struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Payload    []byte    `gorm:"not null" json:"-"`
	Sealed     bool      `gorm:"default:false" json:"sealed"`
	CapturedAt time.Time `gorm:"not null;index:idx_captured_at" json:"capturedAt"`
}

// TableName specifies the table name
func (CapturedImage) TableName() string {
	return "captured_images"
}
