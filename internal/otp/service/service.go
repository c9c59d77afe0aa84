// Package service implements OTP issuance and verification on top of the
// record store, the rate limiter, and the mail transport.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"atelier/internal/account"
	"atelier/internal/audit"
	"atelier/internal/mailer"
	"atelier/internal/otp"
	"atelier/internal/platform/metrics"
	"atelier/internal/ratelimit"
	dErrors "atelier/pkg/domain-errors"
	"atelier/pkg/email"
	"atelier/pkg/platform/sentinel"
)

// Policy bounds issuance and verification.
type Policy struct {
	// Window is the minimum gap between issuances per email (and per IP).
	Window time.Duration
	// TTL is how long an issued code stays verifiable.
	TTL time.Duration
	// MaxAttempts locks the record once failed verifications reach it.
	MaxAttempts int
}

// DefaultPolicy matches the product defaults: one send per minute, codes
// valid ten minutes, five attempts.
func DefaultPolicy() Policy {
	return Policy{Window: 60 * time.Second, TTL: 10 * time.Minute, MaxAttempts: 5}
}

// Service drives the per-record state machine:
// none -> issued -> {verified | expired | locked}.
type Service struct {
	store     otp.Store
	accounts  account.Store
	limiter   ratelimit.Limiter
	mailer    mailer.Mailer
	validator *email.Validator
	policy    Policy

	metrics *metrics.Metrics
	audit   *audit.Publisher
	logger  *slog.Logger

	now      func() time.Time
	generate func() (string, error)
	hashCost int
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

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCodeGenerator overrides code generation (tests).
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generate = gen }
}

// WithHashCost lowers the bcrypt cost in tests.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func New(
	store otp.Store,
	accounts account.Store,
	limiter ratelimit.Limiter,
	sender mailer.Mailer,
	validator *email.Validator,
	opts ...Option,
) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("otp store is required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account store is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("email validator is required")
	}

	s := &Service{
		store:     store,
		accounts:  accounts,
		limiter:   limiter,
		mailer:    sender,
		validator: validator,
		policy:    DefaultPolicy(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		generate:  generateCode,
		hashCost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request issues a fresh code for a new-signup email and sends it. The
// returned error codes are internally distinct (validation vs conflict);
// the transport layer collapses them into one generic failure shape so the
// response does not reveal whether an email is registered.
func (s *Service) Request(ctx context.Context, address, ip, userAgent string) error {
	addr := email.Normalize(address)

	if !s.validator.Validate(ctx, addr) {
		return dErrors.New(dErrors.CodeValidation, "email domain not accepted")
	}

	if _, err := s.accounts.FindByEmail(ctx, addr); err == nil {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "account lookup failed")
	}

	if err := s.consumeWindow(ctx, "otp:email:"+addr); err != nil {
		return err
	}
	if ip != "" {
		if err := s.consumeWindow(ctx, "otp:ip:"+ip); err != nil {
			return err
		}
	}

	code, err := s.generate()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "code generation failed")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "code hashing failed")
	}

	now := s.now()
	record := otp.Record{
		ID:         uuid.NewString(),
		Email:      addr,
		CodeHash:   hash,
		ExpiresAt:  now.Add(s.policy.TTL),
		LastSentAt: now,
		CreatedIP:  ip,
		Device:     describeDevice(userAgent),
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist otp record")
	}

	if err := s.mailer.SendOTP(ctx, addr, code); err != nil {
		// Compensate the partial failure so the next issuance starts clean.
		// The rate-limit marker stands: a broken mail path should not be
		// hammered.
		if delErr := s.store.Delete(ctx, record.ID); delErr != nil {
			s.logger.Error("failed to delete otp record after send failure",
				"record_id", record.ID,
				"error", delErr,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeUpstream, "code delivery failed")
	}

	if s.metrics != nil {
		s.metrics.OTPIssued.Inc()
	}
	s.logger.Info("otp issued", "device", record.Device)
	return nil
}

// Verify checks a submitted code against the latest unconsumed record and
// returns the verified email address. All state transitions derive from one
// consistent read; the final consume is conditional so concurrent attempts
// resolve to a single winner.
func (s *Service) Verify(ctx context.Context, address, code string) (string, error) {
	addr := email.Normalize(address)

	record, err := s.store.LatestUnconsumed(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Same shape as a wrong code, so the response does not reveal
			// whether an issuance exists for the address.
			return "", dErrors.New(dErrors.CodeValidation, "invalid or expired code")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load otp record")
	}

	// Lockout wins over expiry and over code correctness.
	if record.AttemptCount >= s.policy.MaxAttempts {
		return "", dErrors.Locked("too many failed attempts")
	}

	now := s.now()
	if record.Expired(now) {
		if err := s.store.Consume(ctx, record.ID, nil); err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "invalidate expired code")
		}
		return "", dErrors.New(dErrors.CodeValidation, "code expired")
	}

	if bcrypt.CompareHashAndPassword(record.CodeHash, []byte(code)) != nil {
		count, err := s.store.IncrementAttempts(ctx, record.ID)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "record failed attempt")
		}
		if s.metrics != nil {
			s.metrics.OTPVerifyFailures.Inc()
		}
		if count >= s.policy.MaxAttempts {
			if s.metrics != nil {
				s.metrics.OTPLockouts.Inc()
			}
			if s.audit != nil {
				s.audit.Emit(ctx, audit.Event{
					Action:  audit.ActionOTPLockout,
					Subject: addr,
				})
			}
			return "", dErrors.Locked("too many failed attempts")
		}
		return "", dErrors.New(dErrors.CodeValidation, "invalid code")
	}

	if err := s.store.Consume(ctx, record.ID, &now); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return "", dErrors.New(dErrors.CodeConflict, "code already consumed")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "consume otp record")
	}
	return addr, nil
}

func (s *Service) consumeWindow(ctx context.Context, key string) error {
	result, err := s.limiter.CheckAndConsume(ctx, key, s.policy.Window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}
	if !result.Allowed {
		return dErrors.RateLimited(result.RetryAfter)
	}
	return nil
}

// generateCode draws a uniform 6-digit code, leading zeros preserved.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// describeDevice condenses a User-Agent header into "browser version on os".
func describeDevice(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return ua.OS()
	}
	if ua.OS() == "" {
		return fmt.Sprintf("%s %s", name, version)
	}
	return fmt.Sprintf("%s %s on %s", name, version, ua.OS())
}
