package job

import (
	"context"
	"time"
)

// Store persists job records. ApplyStatus owns the transition rule so every
// implementation enforces it under its own concurrency model.
type Store interface {
	Create(ctx context.Context, j Job) error

	// Get returns a job by id; sentinel.ErrNotFound when missing.
	Get(ctx context.Context, id string) (Job, error)

	// ApplyStatus applies a callback-reported transition. Terminal states are
	// sticky: once succeeded or failed, further reports leave the record
	// unchanged and return changed=false, which is what makes retried webhook
	// deliveries harmless. Result replaces the stored result on succeeded;
	// errMsg is recorded on failed. CreditsUsed and OwnerID are never
	// modified here.
	ApplyStatus(ctx context.Context, id string, status Status, result *Result, errMsg string, now time.Time) (j Job, changed bool, err error)
}
