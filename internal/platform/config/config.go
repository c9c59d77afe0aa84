// Package config loads process configuration from the environment. Required
// settings are validated here so main can fail before binding a socket.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration, built once at startup and passed
// into components explicitly. No package-level singletons.
type Config struct {
	Addr string

	// Session token signing. Secret must be at least 32 bytes.
	SessionSecret []byte
	SessionTTL    time.Duration
	// InsecureCookies drops the Secure cookie attribute for local origins.
	InsecureCookies bool

	// Postgres DSN. Empty selects the in-memory stores (dev and unit tests).
	DatabaseURL string

	Redis RedisConfig

	SMTP SMTPConfig

	// External job processor.
	ProcessorBaseURL string
	ProcessorTimeout time.Duration
	// CallbackBaseURL is this service's public address, used to build the
	// webhook callback URL handed to the processor.
	CallbackBaseURL string
	CallbackSecret  string

	// Payment provider server key used for webhook signature verification.
	PaymentServerKey string

	// OTP issuance and verification policy.
	OTPWindow      time.Duration
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// Credits granted to a freshly verified account.
	SignupCredits int64

	// Kafka brokers for the audit event stream. Empty disables publishing.
	KafkaBrokers []string
	AuditTopic   string

	// General API throttle (token bucket per client IP).
	ThrottleRPS   float64
	ThrottleBurst int

	DeniedEmailDomains []string
}

// RedisConfig configures the shared rate-limit store. Empty URL selects the
// in-memory limiter.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SMTPConfig holds outbound mail transport credentials.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Load reads configuration from the environment and validates the
// startup-fatal subset: session secret, SMTP credentials, processor address
// and callback secret, payment server key.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:             envOr("ATELIER_ADDR", ":8080"),
		SessionSecret:    []byte(os.Getenv("ATELIER_SESSION_SECRET")),
		SessionTTL:       envDuration("ATELIER_SESSION_TTL", 24*time.Hour),
		InsecureCookies:  os.Getenv("ATELIER_INSECURE_COOKIES") == "true",
		DatabaseURL:      os.Getenv("ATELIER_DATABASE_URL"),
		ProcessorBaseURL: os.Getenv("ATELIER_PROCESSOR_URL"),
		ProcessorTimeout: envDuration("ATELIER_PROCESSOR_TIMEOUT", 5*time.Second),
		CallbackBaseURL:  envOr("ATELIER_CALLBACK_BASE_URL", "http://localhost:8080"),
		CallbackSecret:   os.Getenv("ATELIER_CALLBACK_SECRET"),
		PaymentServerKey: os.Getenv("ATELIER_PAYMENT_SERVER_KEY"),
		OTPWindow:        envDuration("ATELIER_OTP_WINDOW", 60*time.Second),
		OTPTTL:           envDuration("ATELIER_OTP_TTL", 10*time.Minute),
		OTPMaxAttempts:   envInt("ATELIER_OTP_MAX_ATTEMPTS", 5),
		SignupCredits:    int64(envInt("ATELIER_SIGNUP_CREDITS", 10)),
		AuditTopic:       envOr("ATELIER_AUDIT_TOPIC", "atelier.audit"),
		ThrottleRPS:      envFloat("ATELIER_THROTTLE_RPS", 20),
		ThrottleBurst:    envInt("ATELIER_THROTTLE_BURST", 40),
		Redis: RedisConfig{
			URL:          os.Getenv("ATELIER_REDIS_URL"),
			PoolSize:     envInt("ATELIER_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ATELIER_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("ATELIER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ATELIER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ATELIER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		SMTP: SMTPConfig{
			Host: os.Getenv("ATELIER_SMTP_HOST"),
			Port: envInt("ATELIER_SMTP_PORT", 587),
			User: os.Getenv("ATELIER_SMTP_USER"),
			Pass: os.Getenv("ATELIER_SMTP_PASS"),
			From: envOr("ATELIER_SMTP_FROM", "no-reply@atelier.app"),
		},
	}

	if brokers := os.Getenv("ATELIER_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	if denied := os.Getenv("ATELIER_DENIED_EMAIL_DOMAINS"); denied != "" {
		cfg.DeniedEmailDomains = splitAndTrim(denied)
	}

	return cfg, cfg.Validate()
}

// Validate enforces the startup-fatal requirements.
func (c *Config) Validate() error {
	var problems []string

	if len(c.SessionSecret) < 32 {
		problems = append(problems, "ATELIER_SESSION_SECRET must be at least 32 bytes")
	}
	if c.SMTP.Host == "" || c.SMTP.User == "" || c.SMTP.Pass == "" {
		problems = append(problems, "SMTP credentials (ATELIER_SMTP_HOST/USER/PASS) are required")
	}
	if c.ProcessorBaseURL == "" {
		problems = append(problems, "ATELIER_PROCESSOR_URL is required")
	}
	if c.CallbackSecret == "" {
		problems = append(problems, "ATELIER_CALLBACK_SECRET is required")
	}
	if c.PaymentServerKey == "" {
		problems = append(problems, "ATELIER_PAYMENT_SERVER_KEY is required")
	}
	if c.OTPMaxAttempts <= 0 {
		problems = append(problems, "ATELIER_OTP_MAX_ATTEMPTS must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// CallbackURL is the absolute URL the processor posts job completions to.
func (c *Config) CallbackURL() string {
	return strings.TrimSuffix(c.CallbackBaseURL, "/") + "/webhooks/jobs"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
