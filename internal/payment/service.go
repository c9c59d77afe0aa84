package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"atelier/internal/audit"
	"atelier/internal/ledger"
	"atelier/internal/platform/metrics"
	dErrors "atelier/pkg/domain-errors"
	"atelier/pkg/platform/sentinel"
)

const providerName = "midtrans"

// Service validates provider notices and applies settlements to the ledger.
type Service struct {
	store     Store
	ledger    *ledger.Service
	serverKey string

	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, ledgerSvc *ledger.Service, serverKey string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("payment store is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if serverKey == "" {
		return nil, fmt.Errorf("payment server key is required")
	}

	s := &Service{
		store:     store,
		ledger:    ledgerSvc,
		serverKey: serverKey,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateTransaction writes a pending top-up order and returns it; the caller
// forwards the order id and amount to the provider's checkout.
func (s *Service) CreateTransaction(ctx context.Context, ownerID string, amount int64, kind string) (Transaction, error) {
	if ownerID == "" {
		return Transaction{}, dErrors.New(dErrors.CodeUnauthorized, "owner is required")
	}
	if amount <= 0 {
		return Transaction{}, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}

	now := s.now()
	tx := Transaction{
		OrderID:   "atl-" + uuid.NewString(),
		OwnerID:   ownerID,
		Amount:    amount,
		Kind:      kind,
		Status:    StatusPending,
		Provider:  providerName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Transaction{}, dErrors.New(dErrors.CodeConflict, "order already exists")
		}
		return Transaction{}, dErrors.Wrap(err, dErrors.CodeInternal, "create transaction")
	}
	return tx, nil
}

// HandleWebhook verifies the notice signature, mirrors the status onto the
// transaction record, and credits the owner exactly once per settlement. The
// ledger credit is keyed by the order id, so a redelivered settlement notice
// cannot double-credit, and a credit that failed transiently is retried the
// next time the provider redelivers instead of being lost.
func (s *Service) HandleWebhook(ctx context.Context, notice Notice) error {
	if !VerifySignature(notice, s.serverKey) {
		if s.metrics != nil {
			s.metrics.WebhooksRejected.WithLabelValues("payment", "invalid_signature").Inc()
		}
		return dErrors.New(dErrors.CodeUnauthorized, "invalid signature")
	}
	if notice.OrderID == "" || notice.TransactionStatus == "" {
		if s.metrics != nil {
			s.metrics.WebhooksRejected.WithLabelValues("payment", "invalid_payload").Inc()
		}
		return dErrors.New(dErrors.CodeValidation, "invalid notice payload")
	}

	raw, err := json.Marshal(notice)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode notice")
	}

	tx, err := s.store.ApplyNotice(ctx, notice.OrderID, notice.TransactionStatus, raw, s.now())
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "apply notice")
	}

	if !Settled(tx.Status) {
		return nil
	}
	if tx.OwnerID == "" {
		// Notice raced the create call; keep the mirrored record and wait for
		// the owner to be attached before any credit can apply.
		s.logger.Warn("settlement for transaction without owner",
			"order_id", tx.OrderID,
		)
		return nil
	}

	_, duplicate, err := s.ledger.Credit(ctx, tx.OwnerID, tx.Amount, "topup:"+tx.Kind, "settlement-"+tx.OrderID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "apply settlement credits")
	}
	if duplicate {
		return nil
	}

	if s.metrics != nil {
		s.metrics.SettlementsApplied.Inc()
	}
	if s.audit != nil {
		s.audit.Emit(ctx, audit.Event{
			AccountID: tx.OwnerID,
			Action:    audit.ActionSettlement,
			Subject:   tx.OrderID,
			Amount:    tx.Amount,
			Detail:    notice.TransactionStatus,
		})
	}
	s.logger.Info("settlement applied",
		"order_id", tx.OrderID,
		"account_id", tx.OwnerID,
		"amount", tx.Amount,
	)
	return nil
}
