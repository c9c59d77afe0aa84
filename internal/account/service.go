package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"atelier/internal/ledger"
	dErrors "atelier/pkg/domain-errors"
	"atelier/pkg/platform/sentinel"
)

// Service creates accounts on first successful OTP verification and seeds
// the ledger with the signup credit grant.
type Service struct {
	store         Store
	ledger        *ledger.Service
	signupCredits int64
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, ledgerSvc *ledger.Service, signupCredits int64, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	s := &Service{
		store:         store,
		ledger:        ledgerSvc,
		signupCredits: signupCredits,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureAccount returns the account for a verified email, creating it (with
// the signup credit grant) on first sight. Concurrent first sign-ins for one
// email converge on the single stored account.
func (s *Service) EnsureAccount(ctx context.Context, email string) (Account, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
	}

	acct = Account{
		ID:        uuid.NewString(),
		Email:     email,
		CreatedAt: s.now(),
	}
	if err := s.store.Create(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the creation race; the winner's record is authoritative.
			return s.store.FindByEmail(ctx, email)
		}
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "create account")
	}

	if err := s.ledger.CreateAccount(ctx, acct.ID, s.signupCredits); err != nil {
		if !dErrors.Is(err, dErrors.CodeConflict) {
			return Account{}, err
		}
	}

	s.logger.Info("account created", "account_id", acct.ID)
	return acct, nil
}

// FindByID resolves an account by id for authenticated reads.
func (s *Service) FindByID(ctx context.Context, id string) (Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Account{}, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return Account{}, dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
	}
	return acct, nil
}
