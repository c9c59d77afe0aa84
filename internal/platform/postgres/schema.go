package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id         TEXT        PRIMARY KEY,
		email      TEXT        NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		account_id TEXT        PRIMARY KEY,
		credits    BIGINT      NOT NULL DEFAULT 0 CHECK (credits >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS spend_log (
		account_id      TEXT        NOT NULL,
		idempotency_key TEXT        NOT NULL,
		amount          BIGINT      NOT NULL,
		reason          TEXT        NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (account_id, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS otp_records (
		id            TEXT        PRIMARY KEY,
		email         TEXT        NOT NULL,
		code_hash     TEXT        NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		consumed      BOOLEAN     NOT NULL DEFAULT false,
		attempt_count INT         NOT NULL DEFAULT 0,
		last_sent_at  TIMESTAMPTZ NOT NULL,
		created_ip    TEXT        NOT NULL DEFAULT '',
		device        TEXT        NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		verified_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_records_email
		ON otp_records(email) WHERE consumed = false`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT        PRIMARY KEY,
		owner_id     TEXT        NOT NULL,
		kind         TEXT        NOT NULL,
		input        JSONB,
		status       TEXT        NOT NULL,
		credits_used BIGINT      NOT NULL DEFAULT 0,
		result       JSONB,
		error        TEXT        NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_owner_id ON jobs(owner_id)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id         TEXT        PRIMARY KEY,
		job_id     TEXT        NOT NULL UNIQUE,
		owner_id   TEXT        NOT NULL,
		url        TEXT        NOT NULL,
		meta       JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_owner_id ON assets(owner_id)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		order_id   TEXT        PRIMARY KEY,
		owner_id   TEXT,
		amount     BIGINT      NOT NULL DEFAULT 0,
		kind       TEXT        NOT NULL DEFAULT '',
		status     TEXT        NOT NULL DEFAULT 'pending',
		provider   TEXT        NOT NULL DEFAULT '',
		payload    TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_owner_id ON transactions(owner_id)`,
}

// EnsureSchema applies the DDL idempotently at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
