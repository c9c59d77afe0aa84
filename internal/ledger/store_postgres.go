package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

// PostgresStore executes Spend and AddCredits as single transactions with
// row locks, so concurrent debits against one account serialize on the
// balance row and never both read a pre-debit value.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, accountID string, initial int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO balances (account_id, credits, updated_at) VALUES ($1, $2, now())`,
		accountID, initial,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create balance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, accountID string) (Balance, error) {
	var bal Balance
	err := s.db.QueryRow(ctx,
		`SELECT account_id, credits, updated_at FROM balances WHERE account_id = $1`,
		accountID,
	).Scan(&bal.AccountID, &bal.Credits, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, sentinel.ErrNotFound
		}
		return Balance{}, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

func (s *PostgresStore) Spend(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, bool, error) {
	// Read committed plus the row lock: a concurrent spend waits on FOR
	// UPDATE and then sees the committed post-debit balance.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin spend tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var credits int64
	err = tx.QueryRow(ctx,
		`SELECT credits FROM balances WHERE account_id = $1 FOR UPDATE`,
		accountID,
	).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, sentinel.ErrNotFound
		}
		return 0, false, fmt.Errorf("lock balance: %w", err)
	}

	var seen bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM spend_log WHERE account_id = $1 AND idempotency_key = $2)`,
		accountID, idempotencyKey,
	).Scan(&seen)
	if err != nil {
		return 0, false, fmt.Errorf("check spend log: %w", err)
	}
	if seen {
		// Repeat of a committed spend: report the current balance unchanged.
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("commit spend tx: %w", err)
		}
		return credits, true, nil
	}

	if credits < amount {
		return credits, false, sentinel.ErrInsufficient
	}

	remaining := credits - amount
	if _, err := tx.Exec(ctx,
		`UPDATE balances SET credits = $1, updated_at = now() WHERE account_id = $2`,
		remaining, accountID,
	); err != nil {
		return 0, false, fmt.Errorf("debit balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO spend_log (account_id, idempotency_key, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		accountID, idempotencyKey, amount, reason,
	); err != nil {
		return 0, false, fmt.Errorf("append spend log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit spend tx: %w", err)
	}
	return remaining, false, nil
}

func (s *PostgresStore) AddCredits(ctx context.Context, accountID string, amount int64) (int64, error) {
	var credits int64
	err := s.db.QueryRow(ctx,
		`UPDATE balances SET credits = credits + $1, updated_at = now()
		 WHERE account_id = $2
		 RETURNING credits`,
		amount, accountID,
	).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return credits, nil
}

func (s *PostgresStore) Credit(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var credits int64
	err = tx.QueryRow(ctx,
		`SELECT credits FROM balances WHERE account_id = $1 FOR UPDATE`,
		accountID,
	).Scan(&credits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, sentinel.ErrNotFound
		}
		return 0, false, fmt.Errorf("lock balance: %w", err)
	}

	var seen bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM spend_log WHERE account_id = $1 AND idempotency_key = $2)`,
		accountID, idempotencyKey,
	).Scan(&seen)
	if err != nil {
		return 0, false, fmt.Errorf("check spend log: %w", err)
	}
	if seen {
		if err := tx.Commit(ctx); err != nil {
			return 0, false, fmt.Errorf("commit credit tx: %w", err)
		}
		return credits, true, nil
	}

	credits += amount
	if _, err := tx.Exec(ctx,
		`UPDATE balances SET credits = $1, updated_at = now() WHERE account_id = $2`,
		credits, accountID,
	); err != nil {
		return 0, false, fmt.Errorf("credit balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO spend_log (account_id, idempotency_key, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		accountID, idempotencyKey, -amount, reason,
	); err != nil {
		return 0, false, fmt.Errorf("append spend log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit credit tx: %w", err)
	}
	return credits, false, nil
}

func (s *PostgresStore) Spends(ctx context.Context, accountID string) ([]SpendEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT account_id, idempotency_key, amount, reason, created_at
		 FROM spend_log WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list spends: %w", err)
	}
	defer rows.Close()

	var entries []SpendEntry
	for rows.Next() {
		var e SpendEntry
		if err := rows.Scan(&e.AccountID, &e.IdempotencyKey, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan spend entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
