package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/models"
)

// MemoryStore is an in-memory Store used by unit tests and local runs
// without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[uuid.UUID]*models.File
	users map[uuid.UUID]*models.User
	logs  []models.AccessLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[uuid.UUID]*models.File),
		users: make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) GetFileByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *MemoryStore) GetFileByAccessToken(ctx context.Context, token string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, file := range s.files {
		if file.AccessToken == token {
			copied := *file
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateFileAccessToken(ctx context.Context, id uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	file.AccessToken = token
	return nil
}

func (s *MemoryStore) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	file.DownloadCount++
	now := time.Now()
	file.LastDownloadedAt = &now
	return nil
}

func (s *MemoryStore) CreateAccessLog(ctx context.Context, entry *models.AccessLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) GetAccessLogs(ctx context.Context, ownerID uuid.UUID, fileID *uuid.UUID, limit, offset int) ([]models.AccessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]models.AccessLog, 0)
	for _, entry := range s.logs {
		file, ok := s.files[entry.FileID]
		if !ok || file.OwnerID != ownerID {
			continue
		}
		if fileID != nil && entry.FileID != *fileID {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return []models.AccessLog{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) GetAccessLogsSince(ctx context.Context, fileID uuid.UUID, since time.Time) ([]models.AccessLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]models.AccessLog, 0)
	for _, entry := range s.logs {
		if entry.FileID == fileID && !entry.CreatedAt.Before(since) {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (s *MemoryStore) CreateFile(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	copied := *file
	s.files[file.ID] = &copied
	return nil
}

func (s *MemoryStore) ListFilesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]models.File, 0)
	for _, file := range s.files {
		if file.OwnerID == ownerID {
			files = append(files, *file)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (s *MemoryStore) RenameFile(ctx context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	file.OriginalName = name
	return nil
}

func (s *MemoryStore) DeleteFile(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
	return nil
}

func (s *MemoryStore) ListExpiredFiles(ctx context.Context, before time.Time) ([]models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]models.File, 0)
	for _, file := range s.files {
		if file.ExpiresAt != nil && file.ExpiresAt.Before(before) {
			files = append(files, *file)
		}
	}
	return files, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}
