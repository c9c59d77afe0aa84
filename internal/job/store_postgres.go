package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

// PostgresStore enforces terminal stickiness with a guarded UPDATE, so
// concurrent webhook retries serialize on the row and at most one delivery
// changes the record.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, j Job) error {
	resultJSON, err := marshalResult(j.Result)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO jobs (id, owner_id, kind, input, status, credits_used, result, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.OwnerID, string(j.Kind), j.Input, string(j.Status), j.CreditsUsed,
		resultJSON, j.Error, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, owner_id, kind, input, status, credits_used, result, error, created_at, updated_at
		 FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PostgresStore) ApplyStatus(ctx context.Context, id string, status Status, result *Result, errMsg string, now time.Time) (Job, bool, error) {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return Job{}, false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Job{}, false, fmt.Errorf("begin callback tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE jobs
		 SET status = $2,
		     result = CASE WHEN $2 = 'succeeded' THEN $3 ELSE NULL END,
		     error  = CASE WHEN $2 = 'failed' THEN $4 ELSE '' END,
		     updated_at = $5
		 WHERE id = $1 AND status NOT IN ('succeeded', 'failed')`,
		id, string(status), resultJSON, errMsg, now,
	)
	if err != nil {
		return Job{}, false, fmt.Errorf("apply job status: %w", err)
	}
	changed := tag.RowsAffected() > 0

	j, err := scanJob(tx.QueryRow(ctx,
		`SELECT id, owner_id, kind, input, status, credits_used, result, error, created_at, updated_at
		 FROM jobs WHERE id = $1`, id))
	if err != nil {
		return Job{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Job{}, false, fmt.Errorf("commit callback tx: %w", err)
	}
	return j, changed, nil
}

func marshalResult(r *Result) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal job result: %w", err)
	}
	return data, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		j          Job
		kind       string
		status     string
		resultJSON []byte
	)
	err := row.Scan(&j.ID, &j.OwnerID, &kind, &j.Input, &status, &j.CreditsUsed,
		&resultJSON, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, sentinel.ErrNotFound
		}
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	j.Kind = Kind(kind)
	j.Status = Status(status)
	if len(resultJSON) > 0 {
		var r Result
		if err := json.Unmarshal(resultJSON, &r); err != nil {
			return Job{}, fmt.Errorf("unmarshal job result: %w", err)
		}
		j.Result = &r
	}
	return j, nil
}
