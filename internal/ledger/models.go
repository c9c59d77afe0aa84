// Package ledger holds per-account credit balances and the append-only spend
// log that makes debits idempotent.
package ledger

import "time"

// Balance is the metered credit balance for one account. It is mutated only
// through the store's atomic Spend and AddCredits operations and never goes
// negative: a spend that would overdraw is rejected, not clamped.
type Balance struct {
	AccountID string
	Credits   int64
	UpdatedAt time.Time
}

// SpendEntry is one committed ledger mutation, keyed by
// (AccountID, IdempotencyKey). Existence of the key is the single source of
// truth for "this exact mutation already happened". Debits carry a positive
// Amount, keyed credits a negative one. Entries are immutable once written.
type SpendEntry struct {
	AccountID      string
	IdempotencyKey string
	Amount         int64
	Reason         string
	CreatedAt      time.Time
}
