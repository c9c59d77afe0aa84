// Package service implements job dispatch (debit, persist, submit) and the
// webhook receiver that applies completion reports.
package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/asset"
	"atelier/internal/audit"
	"atelier/internal/job"
	"atelier/internal/job/processor"
	"atelier/internal/ledger"
	"atelier/internal/platform/metrics"
	dErrors "atelier/pkg/domain-errors"
	"atelier/pkg/platform/sentinel"
)

// CallbackPayload is the completion report posted by the processor. Delivery
// may be retried; applying the same terminal report twice must be harmless.
type CallbackPayload struct {
	JobID     string            `json:"jobId"`
	Status    string            `json:"status"`
	ResultURL string            `json:"resultUrl,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Service wires the dispatcher and receiver around the job store, the
// ledger, and the processor client.
type Service struct {
	jobs      job.Store
	assets    asset.Store
	ledger    *ledger.Service
	processor processor.Client

	callbackURL    string
	callbackSecret []byte

	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	jobs job.Store,
	assets asset.Store,
	ledgerSvc *ledger.Service,
	proc processor.Client,
	callbackURL string,
	callbackSecret string,
	opts ...Option,
) (*Service, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if assets == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if proc == nil {
		return nil, fmt.Errorf("processor client is required")
	}
	if callbackSecret == "" {
		return nil, fmt.Errorf("callback secret is required")
	}

	s := &Service{
		jobs:           jobs,
		assets:         assets,
		ledger:         ledgerSvc,
		processor:      proc,
		callbackURL:    callbackURL,
		callbackSecret: []byte(callbackSecret),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:         otel.Tracer("atelier/job"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create debits the kind's credit cost exactly once (the idempotency key is
// derived from the job id allocated up front), persists the job queued, and
// hands it to the processor. An unreachable processor leaves the job queued
// with credits spent; that state is deliberately observable so an
// operational reconciliation job can detect charged-but-never-ran work.
func (s *Service) Create(ctx context.Context, ownerID string, kind job.Kind, input json.RawMessage) (job.Job, error) {
	if ownerID == "" {
		return job.Job{}, dErrors.New(dErrors.CodeUnauthorized, "owner is required")
	}
	if kind == "" {
		return job.Job{}, dErrors.New(dErrors.CodeValidation, "kind is required")
	}

	ctx, span := s.tracer.Start(ctx, "job.Create",
		trace.WithAttributes(
			attribute.String("job.kind", string(kind)),
			attribute.String("account.id", ownerID),
		))
	defer span.End()

	cost, known := job.CostFor(kind)
	if !known {
		s.logger.Warn("unknown job kind, charging default cost",
			"kind", kind,
			"cost", cost,
		)
	}

	jobID := uuid.NewString()
	idempotencyKey := "ai-job-" + jobID

	if _, err := s.ledger.Spend(ctx, ownerID, cost, "ai:"+string(kind), idempotencyKey); err != nil {
		return job.Job{}, err
	}

	now := s.now()
	j := job.Job{
		ID:          jobID,
		OwnerID:     ownerID,
		Kind:        kind,
		Input:       input,
		Status:      job.StatusQueued,
		CreditsUsed: cost,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return job.Job{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist job")
	}

	if s.metrics != nil {
		s.metrics.JobsCreated.WithLabelValues(string(kind)).Inc()
	}
	s.emit(ctx, audit.Event{
		AccountID: ownerID,
		Action:    audit.ActionJobCreated,
		Subject:   jobID,
		Amount:    cost,
		Detail:    string(kind),
	})

	err := s.processor.Submit(ctx, processor.Submission{
		JobID:       jobID,
		OwnerID:     ownerID,
		Kind:        string(kind),
		Input:       input,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		s.logger.Error("processor submission failed, job stays queued with credits spent",
			"job_id", jobID,
			"error", err,
		)
		return job.Job{}, dErrors.Wrap(err, dErrors.CodeUpstream, "processor unavailable")
	}

	return j, nil
}

// Get returns a job for its owner. Jobs owned by someone else read as not
// found rather than forbidden.
func (s *Service) Get(ctx context.Context, ownerID, jobID string) (job.Job, error) {
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return job.Job{}, dErrors.New(dErrors.CodeNotFound, "job not found")
		}
		return job.Job{}, dErrors.Wrap(err, dErrors.CodeInternal, "load job")
	}
	if j.OwnerID != ownerID {
		return job.Job{}, dErrors.New(dErrors.CodeNotFound, "job not found")
	}
	return j, nil
}

// AuthorizeCallback checks the processor's shared-secret token in constant
// time. The transport calls it before reading the request body so an
// unauthenticated caller learns nothing from payload handling.
func (s *Service) AuthorizeCallback(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), s.callbackSecret) != 1 {
		if s.metrics != nil {
			s.metrics.WebhooksRejected.WithLabelValues("job", "unauthorized").Inc()
		}
		return dErrors.New(dErrors.CodeUnauthorized, "invalid callback token")
	}
	return nil
}

// HandleCallback validates and applies a completion report. The token is a
// shared secret compared in constant time; replay of a captured token is an
// accepted limitation of this protocol.
func (s *Service) HandleCallback(ctx context.Context, token string, payload CallbackPayload) error {
	if err := s.AuthorizeCallback(token); err != nil {
		return err
	}

	status := job.Status(payload.Status)
	if payload.JobID == "" || !status.IsValid() {
		if s.metrics != nil {
			s.metrics.WebhooksRejected.WithLabelValues("job", "invalid_payload").Inc()
		}
		return dErrors.New(dErrors.CodeValidation, "invalid callback payload")
	}

	var result *job.Result
	if status == job.StatusSucceeded {
		result = &job.Result{URL: payload.ResultURL, Meta: payload.Meta}
	}

	now := s.now()
	j, changed, err := s.jobs.ApplyStatus(ctx, payload.JobID, status, result, payload.Error, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "job not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "apply job status")
	}
	if !changed {
		s.logger.Debug("callback ignored, job already terminal",
			"job_id", payload.JobID,
			"status", j.Status,
		)
		return nil
	}

	if status == job.StatusSucceeded {
		err := s.assets.Upsert(ctx, asset.Asset{
			ID:        uuid.NewString(),
			JobID:     j.ID,
			OwnerID:   j.OwnerID,
			URL:       payload.ResultURL,
			Meta:      payload.Meta,
			CreatedAt: now,
		})
		if err != nil {
			// Asset persistence is a side effect of an already-applied
			// transition; log and continue rather than failing the webhook.
			s.logger.Error("failed to persist asset for succeeded job",
				"job_id", j.ID,
				"error", err,
			)
		}
	}

	if status.IsTerminal() {
		if s.metrics != nil {
			s.metrics.JobsCompleted.WithLabelValues(string(status)).Inc()
		}
		s.emit(ctx, audit.Event{
			AccountID: j.OwnerID,
			Action:    audit.ActionJobCompleted,
			Subject:   j.ID,
			Detail:    string(status),
		})
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}
