// Package ratelimit implements the fixed-window counters guarding the
// file-access operations.
package ratelimit

import (
	"sync"
	"time"
)

// Result reports the outcome of one consume attempt. The fields feed the
// X-RateLimit-* response headers directly.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is injected wherever a budget applies, so the in-process window
// map can be swapped for a shared store without touching callers.
type Limiter interface {
	CheckAndConsume(identifier string, maxAttempts int, window time.Duration) Result
	Cleanup() int
}

// Key namespaces an identifier by operation class, giving each operation an
// independent budget for the same caller.
func Key(purpose, identifier string) string {
	return purpose + ":" + identifier
}

type window struct {
	count   int
	resetAt time.Time
}

// WindowLimiter is the in-process Limiter. A single mutex serializes the
// read-modify-write on the window map.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewWindowLimiter() *WindowLimiter {
	return &WindowLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock overrides the limiter clock. Tests only.
func (l *WindowLimiter) WithClock(now func() time.Time) *WindowLimiter {
	l.now = now
	return l
}

// CheckAndConsume applies the fixed-window check. A stale window is reset
// before the count is touched, so abandoned windows never accumulate hits.
// Once over budget the count stops growing; the window still resets on
// schedule.
func (l *WindowLimiter) CheckAndConsume(identifier string, maxAttempts int, windowDuration time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identifier]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowDuration)}
		l.windows[identifier] = w
		return Result{Allowed: true, Limit: maxAttempts, Remaining: maxAttempts - 1, ResetAt: w.resetAt}
	}

	if w.count >= maxAttempts {
		return Result{Allowed: false, Limit: maxAttempts, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Result{Allowed: true, Limit: maxAttempts, Remaining: maxAttempts - w.count, ResetAt: w.resetAt}
}

// Cleanup drops windows whose reset instant has passed and returns how many
// were removed. Purely a space optimization; correctness never depends on
// it running.
func (l *WindowLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}
