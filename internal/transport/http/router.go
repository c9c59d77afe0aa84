// Package httptransport is the thin HTTP layer: routing, decoding, and the
// translation of domain errors into JSON responses. Business logic stays in
// the domain services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atelier/internal/platform/metrics"
	"atelier/internal/platform/middleware"
)

// RouterDeps collects everything the router mounts.
type RouterDeps struct {
	Auth     *AuthHandler
	Jobs     *JobsHandler
	Payments *PaymentsHandler

	Sessions middleware.SessionVerifier
	Throttle *middleware.Throttle
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewRouter wires the middleware chain and all route groups. Webhooks skip
// the session middleware; they authenticate with their own secrets.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(middleware.Latency(deps.Metrics))
	}
	if deps.Throttle != nil {
		r.Use(deps.Throttle.Handler)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		deps.Auth.Register(r)
		deps.Jobs.RegisterWebhooks(r)
		deps.Payments.RegisterWebhooks(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireSession(deps.Sessions, deps.Logger))
		deps.Jobs.Register(r)
		deps.Payments.Register(r)
	})

	return r
}
