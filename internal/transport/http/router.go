// Package httptransport assembles the chi router: global middleware, the
// operational endpoints and every domain handler.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"formdesk/pkg/platform/middleware/metadata"
	"formdesk/pkg/platform/middleware/request"
	"formdesk/pkg/platform/middleware/requesttime"
)

// DefaultRequestTimeout covers the simulated delivery delays of a verify call.
const DefaultRequestTimeout = 30 * time.Second

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Latency        request.LatencyObserver
	Metrics        http.Handler
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
}

// NewRouter wires the middleware chain, /healthz, /metrics when configured,
// and the given handlers.
func NewRouter(cfg Config, handlers ...Registrar) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.Logger(cfg.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Timeout(timeout))
	r.Use(request.Latency(cfg.Latency))
	r.Use(request.ContentTypeJSON)

	r.Get("/healthz", healthHandler(cfg.HealthChecks))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}
