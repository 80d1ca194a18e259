package jobs

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mehra/filevault-backend/ratelimit"
	"github.com/mehra/filevault-backend/storage"
)

const cleanupInterval = 1 * time.Hour

// StartCleanup runs the hourly maintenance loop: expired files are removed
// from disk and the database, and stale rate-limit windows are dropped.
// Both passes are optimizations — an expired file is already unreachable
// and a stale window already resets lazily — so skipping a tick is harmless.
// The returned stop function is idempotent.
func StartCleanup(store storage.Store, limiter ratelimit.Limiter, logger *log.Logger) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupExpiredFiles(store, logger)
				if removed := limiter.Cleanup(); removed > 0 {
					logger.Debug("rate limit windows cleaned", "removed", removed)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func cleanupExpiredFiles(store storage.Store, logger *log.Logger) {
	ctx := context.Background()
	expired, err := store.ListExpiredFiles(ctx, time.Now())
	if err != nil {
		logger.Error("listing expired files failed", "err", err)
		return
	}
	for _, file := range expired {
		if err := os.Remove(file.StoragePath); err != nil && !os.IsNotExist(err) {
			logger.Error("removing expired file from disk failed", "file_id", file.ID, "err", err)
			continue
		}
		if err := store.DeleteFile(ctx, file.ID); err != nil {
			logger.Error("deleting expired file record failed", "file_id", file.ID, "err", err)
		}
	}
	if len(expired) > 0 {
		logger.Info("expired files cleaned", "count", len(expired))
	}
}
