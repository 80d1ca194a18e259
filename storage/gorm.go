package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mehra/filevault-backend/models"
)

// GormStore backs the Store interface with PostgreSQL through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetFileByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *GormStore) GetFileByAccessToken(ctx context.Context, token string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).First(&file, "access_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *GormStore) UpdateFileAccessToken(ctx context.Context, id uuid.UUID, token string) error {
	return s.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ?", id).
		Update("access_token", token).Error
}

func (s *GormStore) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"download_count":     gorm.Expr("download_count + ?", 1),
			"last_downloaded_at": time.Now(),
		}).Error
}

func (s *GormStore) CreateAccessLog(ctx context.Context, entry *models.AccessLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// GetAccessLogs returns entries scoped to files owned by ownerID so one
// user can never page through another user's logs.
func (s *GormStore) GetAccessLogs(ctx context.Context, ownerID uuid.UUID, fileID *uuid.UUID, limit, offset int) ([]models.AccessLog, error) {
	entries := make([]models.AccessLog, 0)
	query := s.db.WithContext(ctx).
		Joins("JOIN files ON files.id = access_logs.file_id").
		Where("files.owner_id = ?", ownerID)
	if fileID != nil {
		query = query.Where("access_logs.file_id = ?", *fileID)
	}
	err := query.Order("access_logs.created_at DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) GetAccessLogsSince(ctx context.Context, fileID uuid.UUID, since time.Time) ([]models.AccessLog, error) {
	entries := make([]models.AccessLog, 0)
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND created_at >= ?", fileID, since).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) CreateFile(ctx context.Context, file *models.File) error {
	return s.db.WithContext(ctx).Create(file).Error
}

func (s *GormStore) ListFilesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	files := make([]models.File, 0)
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&files).Error
	return files, err
}

func (s *GormStore) RenameFile(ctx context.Context, id uuid.UUID, name string) error {
	return s.db.WithContext(ctx).Model(&models.File{}).
		Where("id = ?", id).
		Update("original_name", name).Error
}

func (s *GormStore) DeleteFile(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.File{}, "id = ?", id).Error
}

func (s *GormStore) ListExpiredFiles(ctx context.Context, before time.Time) ([]models.File, error) {
	files := make([]models.File, 0)
	err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", before).
		Find(&files).Error
	return files, err
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
