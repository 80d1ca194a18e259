// Package storage defines the persistence collaborators consumed by the
// access-control core, plus gorm and in-memory implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/models"
)

var ErrNotFound = errors.New("storage: record not found")

// FileStore is the file-record surface the decision engine reads.
type FileStore interface {
	GetFileByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	GetFileByAccessToken(ctx context.Context, token string) (*models.File, error)
	UpdateFileAccessToken(ctx context.Context, id uuid.UUID, token string) error
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
}

// AccessLogStore is the append-only audit surface.
type AccessLogStore interface {
	CreateAccessLog(ctx context.Context, entry *models.AccessLog) error
	GetAccessLogs(ctx context.Context, ownerID uuid.UUID, fileID *uuid.UUID, limit, offset int) ([]models.AccessLog, error)
	GetAccessLogsSince(ctx context.Context, fileID uuid.UUID, since time.Time) ([]models.AccessLog, error)
}

// SessionResolver turns a session token into a user. A bad or unknown token
// resolves to (nil, nil); errors are reserved for storage faults.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*models.User, error)
}

// Store is the full persistence surface used by the HTTP handlers.
type Store interface {
	FileStore
	AccessLogStore

	CreateFile(ctx context.Context, file *models.File) error
	ListFilesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.File, error)
	RenameFile(ctx context.Context, id uuid.UUID, name string) error
	DeleteFile(ctx context.Context, id uuid.UUID) error
	ListExpiredFiles(ctx context.Context, before time.Time) ([]models.File, error)

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}
