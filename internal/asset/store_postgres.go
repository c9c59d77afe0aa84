package asset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier/pkg/platform/sentinel"
)

// PostgresStore relies on the assets_job_id_key constraint for idempotent
// upserts.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, a Asset) error {
	meta, err := json.Marshal(a.Meta)
	if err != nil {
		return fmt.Errorf("marshal asset meta: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO assets (id, job_id, owner_id, url, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO UPDATE SET
		   url = EXCLUDED.url,
		   meta = EXCLUDED.meta`,
		a.ID, a.JobID, a.OwnerID, a.URL, meta, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByJobID(ctx context.Context, jobID string) (Asset, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, job_id, owner_id, url, meta, created_at FROM assets WHERE job_id = $1`, jobID)
	return scanAsset(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Asset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, job_id, owner_id, url, meta, created_at
		 FROM assets WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAsset(row pgx.Row) (Asset, error) {
	var (
		a    Asset
		meta []byte
	)
	err := row.Scan(&a.ID, &a.JobID, &a.OwnerID, &a.URL, &meta, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, sentinel.ErrNotFound
		}
		return Asset{}, fmt.Errorf("scan asset: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Meta); err != nil {
			return Asset{}, fmt.Errorf("unmarshal asset meta: %w", err)
		}
	}
	return a, nil
}
