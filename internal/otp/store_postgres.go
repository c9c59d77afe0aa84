package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

// PostgresStore is pure I/O. The conditional consume is a single UPDATE
// guarded on consumed = false, which is what makes two concurrent
// verification attempts resolve to exactly one winner.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record Record) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO otp_records
		   (id, email, code_hash, expires_at, consumed, attempt_count, last_sent_at, created_ip, device, created_at)
		 VALUES ($1, $2, $3, $4, false, 0, $5, $6, $7, $8)`,
		record.ID, record.Email, record.CodeHash, record.ExpiresAt,
		record.LastSentAt, record.CreatedIP, record.Device, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create otp record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM otp_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete otp record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LatestUnconsumed(ctx context.Context, email string) (Record, error) {
	var r Record
	err := s.db.QueryRow(ctx,
		`SELECT id, email, code_hash, expires_at, consumed, attempt_count,
		        last_sent_at, created_ip, device, created_at, verified_at
		 FROM otp_records
		 WHERE email = $1 AND consumed = false
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email,
	).Scan(&r.ID, &r.Email, &r.CodeHash, &r.ExpiresAt, &r.Consumed, &r.AttemptCount,
		&r.LastSentAt, &r.CreatedIP, &r.Device, &r.CreatedAt, &r.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, sentinel.ErrNotFound
		}
		return Record{}, fmt.Errorf("load otp record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`UPDATE otp_records SET attempt_count = attempt_count + 1
		 WHERE id = $1
		 RETURNING attempt_count`,
		id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Consume(ctx context.Context, id string, verifiedAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE otp_records SET consumed = true, verified_at = $2
		 WHERE id = $1 AND consumed = false`,
		id, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("consume otp record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already consumed; distinguish for callers.
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM otp_records WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("consume otp record: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
