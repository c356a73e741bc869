package api

import (
	"net/http"

	"mercator-hq/spendcap/pkg/engine"
	"mercator-hq/spendcap/pkg/telemetry/health"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

// Options configures the router.
type Options struct {
	Engine *engine.Engine

	// SweepSecret protects /internal routes. Empty disables them.
	SweepSecret string

	// Collector serves MetricsPath and records request metrics. Optional.
	Collector   *metrics.Collector
	MetricsPath string

	// Health serves /health and /ready. Optional.
	Health *health.Checker

	Version   string
	Commit    string
	BuildTime string
}

// NewRouter builds the service's HTTP handler with the middleware chain
// applied.
//
// Routes:
//
//	POST   /v1/budgets
//	GET    /v1/budgets
//	GET    /v1/budgets/{id}
//	PATCH  /v1/budgets/{id}
//	POST   /v1/budgets/{id}/deactivate
//	DELETE /v1/budgets/{id}
//	POST   /v1/enforcement/check
//	POST   /internal/sweeps/reset
//	POST   /internal/sweeps/breach-check
//	POST   /internal/usage
//	GET    /health, /ready, /version, /metrics
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	budgets := NewBudgetHandler(opts.Engine)
	mux.HandleFunc("POST /v1/budgets", budgets.Create)
	mux.HandleFunc("GET /v1/budgets", budgets.List)
	mux.HandleFunc("GET /v1/budgets/{id}", budgets.Get)
	mux.HandleFunc("PATCH /v1/budgets/{id}", budgets.Update)
	mux.HandleFunc("POST /v1/budgets/{id}/deactivate", budgets.Deactivate)
	mux.HandleFunc("DELETE /v1/budgets/{id}", budgets.Delete)

	enforce := NewEnforcementHandler(opts.Engine)
	mux.HandleFunc("POST /v1/enforcement/check", enforce.Check)

	internal := NewInternalHandler(opts.Engine)
	secret := RequireSecret(opts.SweepSecret)
	mux.Handle("POST /internal/sweeps/reset", secret(http.HandlerFunc(internal.ResetSweep)))
	mux.Handle("POST /internal/sweeps/breach-check", secret(http.HandlerFunc(internal.BreachCheck)))
	mux.Handle("POST /internal/usage", secret(http.HandlerFunc(internal.RecordUsage)))

	if opts.Health != nil {
		mux.HandleFunc("GET /health", opts.Health.LivenessHandler())
		mux.HandleFunc("GET /ready", opts.Health.ReadinessHandler())
	}
	mux.HandleFunc("GET /version", health.VersionHandler(opts.Version, opts.Commit, opts.BuildTime))

	mws := []Middleware{Recovery, RequestID, tracing.HTTPMiddleware, Logging}
	if opts.Collector != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, opts.Collector.Handler())
		mws = append(mws, Metrics(opts.Collector.Requests()))
	}

	return Chain(mux, mws...)
}
