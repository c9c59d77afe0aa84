// Package asset records durable pointers to processed outputs. One asset per
// succeeded job, keyed by job id, so retried success callbacks cannot
// duplicate it.
package asset

import "time"

// Asset points at a processed output in external storage.
type Asset struct {
	ID        string
	JobID     string
	OwnerID   string
	URL       string
	Meta      map[string]string
	CreatedAt time.Time
}
