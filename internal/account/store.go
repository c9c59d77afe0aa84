package account

import "context"

// Store persists accounts. Implementations return sentinel.ErrConflict when
// the email is already registered and sentinel.ErrNotFound on lookups that
// miss.
type Store interface {
	Create(ctx context.Context, acct Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
}
