package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, tx Transaction) error {
	// An early webhook may have stub-created the row without an owner; claim
	// the stub instead of conflicting.
	tag, err := s.db.Exec(ctx,
		`INSERT INTO transactions (order_id, owner_id, amount, kind, status, provider, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (order_id) DO UPDATE SET
		   owner_id = NULLIF($2, ''),
		   amount = $3,
		   kind = $4,
		   provider = $6
		 WHERE transactions.owner_id IS NULL`,
		tx.OrderID, tx.OwnerID, tx.Amount, tx.Kind, tx.Status, tx.Provider, tx.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (Transaction, error) {
	row := s.db.QueryRow(ctx,
		`SELECT order_id, COALESCE(owner_id, ''), amount, kind, status, provider, COALESCE(payload, ''), created_at, updated_at
		 FROM transactions WHERE order_id = $1`, orderID)
	return scanTransaction(row)
}

// ApplyNotice runs the stub-or-load and status mirror in one transaction with
// the row locked, so concurrent deliveries of the same notice serialize on
// the order row.
func (s *PostgresStore) ApplyNotice(ctx context.Context, orderID, status string, payload []byte, now time.Time) (Transaction, error) {
	dbTx, err := s.db.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx)

	row := dbTx.QueryRow(ctx,
		`SELECT order_id, COALESCE(owner_id, ''), amount, kind, status, provider, COALESCE(payload, ''), created_at, updated_at
		 FROM transactions WHERE order_id = $1 FOR UPDATE`, orderID)
	tx, err := scanTransaction(row)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		tx = Transaction{OrderID: orderID, CreatedAt: now}
		_, err = dbTx.Exec(ctx,
			`INSERT INTO transactions (order_id, status, payload, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)`,
			orderID, status, string(payload), now,
		)
		if err != nil {
			return Transaction{}, fmt.Errorf("stub transaction: %w", err)
		}
	case err != nil:
		return Transaction{}, err
	default:
		_, err = dbTx.Exec(ctx,
			`UPDATE transactions SET status = $2, payload = $3, updated_at = $4 WHERE order_id = $1`,
			orderID, status, string(payload), now,
		)
		if err != nil {
			return Transaction{}, fmt.Errorf("update transaction: %w", err)
		}
	}

	tx.Status = status
	tx.Payload = payload
	tx.UpdatedAt = now

	if err := dbTx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("commit tx: %w", err)
	}
	return tx, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx      Transaction
		payload string
	)
	err := row.Scan(&tx.OrderID, &tx.OwnerID, &tx.Amount, &tx.Kind, &tx.Status, &tx.Provider, &payload, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, sentinel.ErrNotFound
		}
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if payload != "" {
		tx.Payload = []byte(payload)
	}
	return tx, nil
}
