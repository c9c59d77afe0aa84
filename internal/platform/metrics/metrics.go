package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the service. Constructed once
// at startup and injected; handlers and services never register collectors
// themselves.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec

	OTPIssued         prometheus.Counter
	OTPVerifyFailures prometheus.Counter
	OTPLockouts       prometheus.Counter

	CreditsSpent   prometheus.Counter
	SpendsRejected prometheus.Counter

	JobsCreated      *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	WebhooksRejected *prometheus.CounterVec

	SettlementsApplied prometheus.Counter
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atelier_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		OTPIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_otp_issued_total",
			Help: "OTP codes issued.",
		}),
		OTPVerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_otp_verify_failures_total",
			Help: "Failed OTP verification attempts.",
		}),
		OTPLockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_otp_lockouts_total",
			Help: "OTP records locked after exhausting attempts.",
		}),
		CreditsSpent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_credits_spent_total",
			Help: "Credits debited from account balances.",
		}),
		SpendsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_spends_rejected_total",
			Help: "Spend attempts rejected for insufficient credits.",
		}),
		JobsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_jobs_created_total",
			Help: "Jobs dispatched, by kind.",
		}, []string{"kind"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_jobs_completed_total",
			Help: "Job completion callbacks applied, by terminal status.",
		}, []string{"status"}),
		WebhooksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "atelier_webhooks_rejected_total",
			Help: "Inbound webhooks rejected, by reason.",
		}, []string{"kind", "reason"}),
		SettlementsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "atelier_settlements_applied_total",
			Help: "Payment settlements credited to accounts.",
		}),
	}
}
