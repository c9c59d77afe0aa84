// Package ratelimit tracks a next-allowed-time marker per key inside a fixed
// window. OTP issuance and other single-action gates share it; sustained
// traffic shaping is handled separately by the token-bucket middleware.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a check-and-consume attempt.
type Result struct {
	Allowed bool
	// RetryAfter is the whole seconds until the window reopens; zero when
	// allowed.
	RetryAfter int
	ResetAt    time.Time
}

// Limiter gates one action per key per window. The marker write is the single
// authoritative gate: two callers racing on the same key must never both
// observe Allowed within one window.
type Limiter interface {
	CheckAndConsume(ctx context.Context, key string, window time.Duration) (Result, error)
}

// retryAfterSeconds rounds a remaining duration up to whole seconds, never
// returning less than 1 for a denied attempt.
func retryAfterSeconds(remaining time.Duration) int {
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
