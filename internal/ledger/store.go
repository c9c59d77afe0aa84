package ledger

import "context"

// Store is the transactional boundary around balances and the spend log.
// Spend and AddCredits must execute as single atomic read-modify-write
// transactions: two concurrent spends against one account never both observe
// a pre-debit balance.
//
// Implementations return sentinel.ErrNotFound for missing accounts and
// sentinel.ErrInsufficient for spends that would overdraw.
type Store interface {
	// CreateAccount initializes a balance row. Creating an existing account
	// returns sentinel.ErrConflict.
	CreateAccount(ctx context.Context, accountID string, initial int64) error

	// Balance reads the current balance.
	Balance(ctx context.Context, accountID string) (Balance, error)

	// Spend atomically debits amount unless the idempotency key was already
	// used, in which case it returns the current balance unchanged with
	// duplicate=true. The debit and the spend-log append commit together or
	// not at all.
	Spend(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (remaining int64, duplicate bool, err error)

	// AddCredits atomically increments the balance, returning the new value.
	AddCredits(ctx context.Context, accountID string, amount int64) (int64, error)

	// Credit is the keyed counterpart of Spend for incoming credits: it
	// increments the balance unless the idempotency key was already used, in
	// which case it returns the current balance unchanged with duplicate=true.
	Credit(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (balance int64, duplicate bool, err error)

	// Spends lists the spend log for an account, newest first.
	Spends(ctx context.Context, accountID string) ([]SpendEntry, error)
}
