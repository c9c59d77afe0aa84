package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"atelier/internal/account"
	"atelier/internal/asset"
	"atelier/internal/audit"
	"atelier/internal/job"
	"atelier/internal/job/processor"
	jobservice "atelier/internal/job/service"
	"atelier/internal/ledger"
	"atelier/internal/mailer"
	"atelier/internal/otp"
	otpservice "atelier/internal/otp/service"
	"atelier/internal/payment"
	"atelier/internal/platform/config"
	"atelier/internal/platform/httpserver"
	"atelier/internal/platform/logger"
	"atelier/internal/platform/metrics"
	"atelier/internal/platform/middleware"
	"atelier/internal/platform/postgres"
	platformredis "atelier/internal/platform/redis"
	"atelier/internal/ratelimit"
	"atelier/internal/session"
	httptransport "atelier/internal/transport/http"
	"atelier/pkg/email"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient.Client)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	auditPub, err := audit.NewPublisher(cfg.KafkaBrokers, cfg.AuditTopic, log)
	if err != nil {
		return err
	}
	defer auditPub.Close()

	var (
		ledgerStore  ledger.Store
		accountStore account.Store
		otpStore     otp.Store
		jobStore     job.Store
		assetStore   asset.Store
		paymentStore payment.Store
	)
	if pool != nil {
		ledgerStore = ledger.NewPostgres(pool)
		accountStore = account.NewPostgres(pool)
		otpStore = otp.NewPostgres(pool)
		jobStore = job.NewPostgres(pool)
		assetStore = asset.NewPostgres(pool)
		paymentStore = payment.NewPostgres(pool)
	} else {
		ledgerStore = ledger.NewMemoryStore()
		accountStore = account.NewMemoryStore()
		otpStore = otp.NewMemoryStore()
		jobStore = job.NewMemoryStore()
		assetStore = asset.NewMemoryStore()
		paymentStore = payment.NewMemoryStore()
	}

	ledgerSvc, err := ledger.New(ledgerStore,
		ledger.WithLogger(log),
		ledger.WithMetrics(m),
		ledger.WithAudit(auditPub),
	)
	if err != nil {
		return err
	}

	accountSvc, err := account.NewService(accountStore, ledgerSvc, cfg.SignupCredits,
		account.WithLogger(log),
	)
	if err != nil {
		return err
	}

	validator := email.NewValidator(email.WithDeniedDomains(cfg.DeniedEmailDomains))

	otpSvc, err := otpservice.New(otpStore, accountStore, limiter, mailer.NewSMTP(cfg.SMTP), validator,
		otpservice.WithLogger(log),
		otpservice.WithMetrics(m),
		otpservice.WithAudit(auditPub),
		otpservice.WithPolicy(otpservice.Policy{
			Window:      cfg.OTPWindow,
			TTL:         cfg.OTPTTL,
			MaxAttempts: cfg.OTPMaxAttempts,
		}),
	)
	if err != nil {
		return err
	}

	issuer, err := session.NewIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	jobSvc, err := jobservice.New(
		jobStore,
		assetStore,
		ledgerSvc,
		processor.NewHTTP(cfg.ProcessorBaseURL, cfg.ProcessorTimeout),
		cfg.CallbackURL(),
		cfg.CallbackSecret,
		jobservice.WithLogger(log),
		jobservice.WithMetrics(m),
		jobservice.WithAudit(auditPub),
	)
	if err != nil {
		return err
	}

	paymentSvc, err := payment.New(paymentStore, ledgerSvc, cfg.PaymentServerKey,
		payment.WithLogger(log),
		payment.WithMetrics(m),
		payment.WithAudit(auditPub),
	)
	if err != nil {
		return err
	}

	throttle := middleware.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst)
	throttle.StartJanitor(ctx.Done())

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Auth:     httptransport.NewAuthHandler(otpSvc, accountSvc, issuer, cfg.InsecureCookies, log),
		Jobs:     httptransport.NewJobsHandler(jobSvc),
		Payments: httptransport.NewPaymentsHandler(paymentSvc),
		Sessions: issuer,
		Throttle: throttle,
		Metrics:  m,
		Logger:   log,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
