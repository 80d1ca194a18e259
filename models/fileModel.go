package models

import (
	"time"

	"github.com/google/uuid"
)

type File struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;not null;index" json:"ownerId"`
	OriginalName string    `json:"originalName"`
	StoragePath  string    `json:"-"`
	FileSize     int64     `json:"fileSize"`
	ContentType  string    `json:"contentType"`
	// AccessToken is the long-lived opaque token backing legacy share links.
	// Rotated on revocation; distinct from short-lived signed capabilities.
	AccessToken      string     `gorm:"uniqueIndex" json:"-"`
	IsPublic         bool       `gorm:"default:false" json:"isPublic"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	DownloadCount    int64      `gorm:"default:0" json:"downloadCount"`
	LastDownloadedAt *time.Time `json:"lastDownloadedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`

	Owner User `gorm:"foreignKey:OwnerID" json:"-"`
}

// Expired reports whether the file-level expiry has passed. An expired file
// must never be served again, only cleaned up.
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}
