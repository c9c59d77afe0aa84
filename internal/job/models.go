// Package job models asynchronous AI-processing jobs and their credit costs.
package job

import (
	"encoding/json"
	"time"
)

// Kind enumerates the processing types the product sells.
type Kind string

const (
	KindCaption          Kind = "caption"
	KindUpscale          Kind = "upscale"
	KindRemoveBackground Kind = "remove-background"
	KindStyleTransfer    Kind = "style-transfer"
)

// costs is the static per-kind credit price table.
var costs = map[Kind]int64{
	KindCaption:          3,
	KindUpscale:          2,
	KindRemoveBackground: 2,
	KindStyleTransfer:    5,
}

// DefaultCost applies to kinds missing from the table. Nonzero so a mistyped
// kind is never processed for free; unknown kinds stay accepted for forward
// compatibility with processor-side additions.
const DefaultCost int64 = 1

// CostFor returns the credit price for a kind and whether it was listed.
func CostFor(kind Kind) (int64, bool) {
	if cost, ok := costs[kind]; ok {
		return cost, true
	}
	return DefaultCost, false
}

// Status is the job lifecycle state. Jobs are created queued; only the
// webhook receiver moves them forward, and never out of a terminal state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsValid checks membership in the status enum.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Result is present only on succeeded jobs.
type Result struct {
	URL  string            `json:"url"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Job is the dispatch record. CreditsUsed is written once at creation and
// never touched by callbacks.
type Job struct {
	ID          string
	OwnerID     string
	Kind        Kind
	Input       json.RawMessage
	Status      Status
	CreditsUsed int64
	Result      *Result
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
