// Package otp issues and verifies short-lived one-time signup codes.
package otp

import "time"

// Record is one issued code. Only the bcrypt hash of the code is stored.
// Records are never deleted once a code has been sent (audit trail); the one
// exception is the issuance compensation path, which removes the record when
// the delivery email could not be sent.
type Record struct {
	ID           string
	Email        string
	CodeHash     []byte
	ExpiresAt    time.Time
	Consumed     bool
	AttemptCount int
	LastSentAt   time.Time
	CreatedIP    string
	// Device is the parsed browser/OS fingerprint of the issuing request.
	Device     string
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
