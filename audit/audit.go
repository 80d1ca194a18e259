// Package audit records every access attempt. Writes are fire-and-forget:
// observability must never be a single point of failure for the operation
// being observed.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/metrics"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 300
	userAgentMaskLen  = 64
)

// Entry is one access attempt as seen by the caller; the sink fills in id
// and timestamp.
type Entry struct {
	FileID       uuid.UUID
	SubjectID    *uuid.UUID
	IPAddress    string
	UserAgent    string
	Action       string
	Success      bool
	ErrorMessage string
}

// View is the masked, presentation-safe form of a stored entry. Raw IPs and
// user agents never cross this boundary.
type View struct {
	ID           uuid.UUID  `json:"id"`
	FileID       uuid.UUID  `json:"fileId"`
	SubjectID    *uuid.UUID `json:"subjectId,omitempty"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	Action       string     `json:"action"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type Sink struct {
	store  storage.AccessLogStore
	logger *log.Logger
}

func NewSink(store storage.AccessLogStore, logger *log.Logger) *Sink {
	return &Sink{store: store, logger: logger}
}

// Record appends one entry. Storage failures are swallowed and reported on
// the diagnostic logger so the triggering operation never aborts.
func (s *Sink) Record(ctx context.Context, e Entry) {
	row := &models.AccessLog{
		FileID:       e.FileID,
		SubjectID:    e.SubjectID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Action:       e.Action,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateAccessLog(ctx, row); err != nil {
		metrics.AuditWriteFailures.Inc()
		s.logger.Error("access log write failed",
			"file_id", e.FileID, "action", e.Action, "err", err)
	}
}

// Query returns masked entries scoped to files owned by ownerID.
func (s *Sink) Query(ctx context.Context, ownerID uuid.UUID, fileID *uuid.UUID, limit, offset int) ([]View, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := s.store.GetAccessLogs(ctx, ownerID, fileID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(entries))
	for _, entry := range entries {
		views = append(views, View{
			ID:           entry.ID,
			FileID:       entry.FileID,
			SubjectID:    entry.SubjectID,
			IPAddress:    MaskIP(entry.IPAddress),
			UserAgent:    MaskUserAgent(entry.UserAgent),
			Action:       entry.Action,
			Success:      entry.Success,
			ErrorMessage: entry.ErrorMessage,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return views, nil
}

// MaskIP keeps only the first two octets of an IPv4 address. Anything else
// non-empty is masked entirely.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return parts[0] + "." + parts[1] + ".*.***"
	}
	return "***"
}

// MaskUserAgent truncates a user agent to a fixed prefix.
func MaskUserAgent(ua string) string {
	if len(ua) <= userAgentMaskLen {
		return ua
	}
	return ua[:userAgentMaskLen] + "..."
}
