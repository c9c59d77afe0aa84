package otp

import (
	"context"
	"time"
)

// Store persists OTP records. Implementations return sentinel errors:
// ErrNotFound when no unconsumed record exists, ErrAlreadyUsed when a
// conditional consume loses the race.
type Store interface {
	// Create persists a freshly issued record.
	Create(ctx context.Context, record Record) error

	// Delete removes a record. Only the issuance compensation path uses it.
	Delete(ctx context.Context, id string) error

	// LatestUnconsumed returns the most recently created unconsumed record
	// for the email.
	LatestUnconsumed(ctx context.Context, email string) (Record, error)

	// IncrementAttempts bumps the failed-attempt counter and returns the new
	// count.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// Consume flips the record to consumed, conditioned on it still being
	// unconsumed so concurrent verification attempts resolve to one winner.
	// verifiedAt is nil on the expiry-invalidation path.
	Consume(ctx context.Context, id string, verifiedAt *time.Time) error
}
