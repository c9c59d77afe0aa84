package sentinel

import "errors"

// Sentinel errors for store-level facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors without
// string matching.
//
// These describe the state of a stored resource, not bad input:
//   - ErrNotFound: record does not exist
//   - ErrConflict: unique key already taken
//   - ErrExpired: record past its expiry
//   - ErrAlreadyUsed: one-shot resource (OTP code, idempotency slot) consumed
//   - ErrInsufficient: balance too low to cover a debit
//   - ErrInvalidState: record in the wrong state for the operation
//   - ErrUnavailable: backing store or upstream unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInsufficient = errors.New("insufficient balance")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
