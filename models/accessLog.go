package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessLog is one append-only access-attempt record. IP and user agent are
// stored raw; masking happens at presentation time only.
type AccessLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FileID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"fileId"`
	SubjectID    *uuid.UUID `gorm:"type:uuid;index" json:"subjectId,omitempty"`
	IPAddress    string     `gorm:"size:64" json:"-"`
	UserAgent    string     `gorm:"type:text" json:"-"`
	Action       string     `gorm:"size:64;not null;index" json:"action"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
}

func (AccessLog) TableName() string {
	return "access_logs"
}
