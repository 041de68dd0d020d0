package models

import (
	"time"

	"gorm.io/datatypes"
)

// SharePermissions describes what a share token allows a guest to do.
type SharePermissions struct {
	CanView         bool `json:"canView"`
	CanUpload       bool `json:"canUpload"`
	CanDownload     bool `json:"canDownload"`
	RequireApproval bool `json:"requireApproval"`
}

// ShareCredential is the resolved, scoped access credential for one event.
// Immutable once resolved; a new one is obtained via re-resolve when this
// one expires or is rejected by the server.
type ShareCredential struct {
	ShareToken  string           `json:"shareToken"`
	AccessToken string           `json:"accessToken"`
	EventID     string           `json:"eventId"`
	EventName   string           `json:"eventName"`
	Permissions SharePermissions `json:"permissions"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
}

// Expired reports whether the credential must not be used anymore.
// A nil ExpiresAt means the server issued a non-expiring credential.
func (c *ShareCredential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// CachedCredential is the opt-in on-device copy of a resolved credential,
// kept so an interrupted guest upload session can resume without asking
// for the share password again.
type CachedCredential struct {
	ShareToken  string         `gorm:"primaryKey;type:text" json:"shareToken"`
	AccessToken string         `gorm:"type:text;not null" json:"-"`
	EventID     string         `gorm:"type:text;not null" json:"eventId"`
	EventName   string         `gorm:"type:text" json:"eventName"`
	Permissions datatypes.JSON `json:"permissions"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// TableName specifies the table name
func (CachedCredential) TableName() string {
	return "cached_credentials"
}
