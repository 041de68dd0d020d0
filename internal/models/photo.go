package models

import "time"

// PhotoStatus is the moderation state of a photo on the wall
type PhotoStatus string

const (
	StatusPending  PhotoStatus = "pending"
	StatusApproved PhotoStatus = "approved"
	StatusRejected PhotoStatus = "rejected"
)

// PhotoRecord is the canonical view of one photo within an event.
// Sequence is assigned server-side, monotonic per event, and is the only
// basis for ordering and conflict resolution (client clocks are not trusted).
type PhotoRecord struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	UploadedAt time.Time   `json:"uploadedAt"`
	Status     PhotoStatus `json:"status"`
	Sequence   int64       `json:"sequence"`
}
