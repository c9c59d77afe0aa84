package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

// PostgresStore is pure I/O; uniqueness is enforced by the accounts_email_key
// constraint so concurrent signups for one email resolve to a single winner.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, acct Account) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (id, email, created_at) VALUES ($1, $2, $3)`,
		acct.ID, acct.Email, acct.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	return s.scanOne(ctx,
		`SELECT id, email, created_at FROM accounts WHERE email = $1`, email)
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	return s.scanOne(ctx,
		`SELECT id, email, created_at FROM accounts WHERE id = $1`, id)
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg any) (Account, error) {
	var acct Account
	err := s.db.QueryRow(ctx, query, arg).Scan(&acct.ID, &acct.Email, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, sentinel.ErrNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}
