// Package processor is the outbound boundary to the external workflow engine
// that runs the actual AI computation and reports back over the job webhook.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"atelier/pkg/platform/sentinel"
)

//go:generate mockgen -source=client.go -destination=mocks/client_mock.go -package=mocks Client

// Submission is the fire-and-forget job handoff. The processor reports
// completion asynchronously to CallbackURL; nothing here waits for the run.
type Submission struct {
	JobID       string          `json:"jobId"`
	OwnerID     string          `json:"ownerId"`
	Kind        string          `json:"kind"`
	Input       json.RawMessage `json:"input"`
	CallbackURL string          `json:"callbackUrl"`
}

// Client submits jobs to the processor.
type Client interface {
	Submit(ctx context.Context, sub Submission) error
}

// HTTPClient talks to the processor's REST intake. Timeouts are short and
// surfaced as sentinel.ErrUnavailable; retry policy belongs to the caller.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Submit(ctx context.Context, sub Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit job %s: %w: %w", sub.JobID, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submit job %s: processor returned %d: %w", sub.JobID, resp.StatusCode, sentinel.ErrUnavailable)
	}
	return nil
}
