// Package account stores the minimal identity record behind OTP signup and
// ledger ownership.
package account

import "time"

// Account is the identity keyed by id; the credit balance lives in the
// ledger, keyed by the same id.
type Account struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
