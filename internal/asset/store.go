package asset

import "context"

// Store persists assets. Upsert is keyed by job id: re-upserting for the
// same job replaces rather than duplicates.
type Store interface {
	Upsert(ctx context.Context, a Asset) error
	FindByJobID(ctx context.Context, jobID string) (Asset, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Asset, error)
}
