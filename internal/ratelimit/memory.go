package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps markers in process memory behind one mutex. Correct
// within a single instance, which is the stated scope of the fallback mode.
// Stale markers are harmless: they are key-scoped and superseded on the next
// allowed action, so no cleanup runs.
type MemoryLimiter struct {
	mu      sync.Mutex
	resetAt map[string]time.Time
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		resetAt: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the time source (tests).
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) CheckAndConsume(_ context.Context, key string, window time.Duration) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if reset, ok := l.resetAt[key]; ok && now.Before(reset) {
		return Result{
			Allowed:    false,
			RetryAfter: retryAfterSeconds(reset.Sub(now)),
			ResetAt:    reset,
		}, nil
	}

	reset := now.Add(window)
	l.resetAt[key] = reset
	return Result{Allowed: true, ResetAt: reset}, nil
}
