package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/audit"
	"atelier/internal/platform/metrics"
	dErrors "atelier/pkg/domain-errors"
	"atelier/pkg/platform/sentinel"
)

// Service fronts the ledger store: it validates input, translates store
// sentinels into coded domain errors, and emits metrics and audit events.
// The atomicity guarantees live in the store; nothing here reads a balance
// outside the store's transactions.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
	tracer  trace.Tracer
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer("atelier/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateAccount initializes a balance for a new account, typically with the
// signup credit grant.
func (s *Service) CreateAccount(ctx context.Context, accountID string, initial int64) error {
	if accountID == "" {
		return dErrors.New(dErrors.CodeValidation, "account id is required")
	}
	if initial < 0 {
		return dErrors.New(dErrors.CodeValidation, "initial credits cannot be negative")
	}
	if err := s.store.CreateAccount(ctx, accountID, initial); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "account already has a balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "create balance")
	}
	return nil
}

// Balance reads the current credit balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	bal, err := s.store.Balance(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read balance")
	}
	return bal.Credits, nil
}

// Spend atomically debits amount against the account unless the idempotency
// key has been used before, in which case the current balance is returned
// unchanged. The key must be derived from the intended spend (the job id),
// not regenerated per HTTP retry.
func (s *Service) Spend(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "spend amount must be positive")
	}
	if idempotencyKey == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}

	ctx, span := s.tracer.Start(ctx, "ledger.Spend",
		trace.WithAttributes(
			attribute.String("account.id", accountID),
			attribute.Int64("spend.amount", amount),
			attribute.String("spend.reason", reason),
		))
	defer span.End()

	remaining, duplicate, err := s.store.Spend(ctx, accountID, amount, reason, idempotencyKey)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return 0, dErrors.New(dErrors.CodeNotFound, "account not found")
	case errors.Is(err, sentinel.ErrInsufficient):
		if s.metrics != nil {
			s.metrics.SpendsRejected.Inc()
		}
		s.emit(ctx, audit.Event{
			AccountID: accountID,
			Action:    audit.ActionSpendRefused,
			Subject:   idempotencyKey,
			Amount:    amount,
			Detail:    reason,
		})
		return 0, dErrors.New(dErrors.CodeInsufficientCredits, "insufficient credits")
	case err != nil:
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "spend failed")
	}

	if duplicate {
		span.SetAttributes(attribute.Bool("spend.duplicate", true))
		s.logger.Debug("duplicate spend ignored",
			"account_id", accountID,
			"idempotency_key", idempotencyKey,
		)
		return remaining, nil
	}

	if s.metrics != nil {
		s.metrics.CreditsSpent.Add(float64(amount))
	}
	s.emit(ctx, audit.Event{
		AccountID: accountID,
		Action:    audit.ActionSpend,
		Subject:   idempotencyKey,
		Amount:    amount,
		Detail:    reason,
	})
	return remaining, nil
}

// AddCredits increments the balance (payment settlement path).
func (s *Service) AddCredits(ctx context.Context, accountID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "credit amount must be positive")
	}

	credits, err := s.store.AddCredits(ctx, accountID, amount)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "add credits")
	}

	s.emit(ctx, audit.Event{
		AccountID: accountID,
		Action:    audit.ActionCreditAdd,
		Amount:    amount,
	})
	return credits, nil
}

// Credit increments the balance unless the idempotency key was already used,
// in which case the current balance is returned unchanged with
// duplicate=true. Settlement webhooks use it so a credit that failed once can
// be retried on redelivery without ever applying twice.
func (s *Service) Credit(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, dErrors.New(dErrors.CodeValidation, "credit amount must be positive")
	}
	if idempotencyKey == "" {
		return 0, false, dErrors.New(dErrors.CodeValidation, "idempotency key is required")
	}

	credits, duplicate, err := s.store.Credit(ctx, accountID, amount, reason, idempotencyKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, false, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return 0, false, dErrors.Wrap(err, dErrors.CodeInternal, "credit failed")
	}

	if duplicate {
		s.logger.Debug("duplicate credit ignored",
			"account_id", accountID,
			"idempotency_key", idempotencyKey,
		)
		return credits, true, nil
	}

	s.emit(ctx, audit.Event{
		AccountID: accountID,
		Action:    audit.ActionCreditAdd,
		Subject:   idempotencyKey,
		Amount:    amount,
		Detail:    reason,
	})
	return credits, false, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}
