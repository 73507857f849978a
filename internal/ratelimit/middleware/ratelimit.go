// Package middleware enforces per-IP request budgets on the public write
// endpoints.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"formdesk/internal/ratelimit/metrics"
	"formdesk/internal/ratelimit/models"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/circuit"
	"formdesk/pkg/platform/httputil"
	"formdesk/pkg/requestcontext"
)

// Store counts requests in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// DefaultLimits apply when WithLimits does not override a class.
var DefaultLimits = map[models.EndpointClass]models.Limit{
	models.ClassIntake:  {RequestsPerWindow: 10, Window: time.Minute},
	models.ClassPayment: {RequestsPerWindow: 30, Window: time.Minute},
}

type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	metrics  *metrics.Metrics
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithFallback sets the store consulted while the primary store is failing.
func WithFallback(store Store) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithLimits(limits map[models.EndpointClass]models.Limit) Option {
	return func(m *Middleware) {
		for class, limit := range limits {
			m.limits[class] = limit
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(primary Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: circuit.New("ratelimit"),
		limits:  make(map[models.EndpointClass]models.Limit, len(DefaultLimits)),
		logger:  logger,
	}
	for class, limit := range DefaultLimits {
		m.limits[class] = limit
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit rejects requests once the client IP exhausts the class budget.
// Store errors fail open.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit, ok := m.limits[class]
			if m.disabled || !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := models.NewIPKey(class, requestcontext.ClientIP(ctx))

			result, degraded, err := m.check(ctx, key, limit)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"request_id", requestcontext.RequestID(ctx),
					"class", string(class),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if !result.Allowed {
				m.metrics.IncrementRejected(string(class))
				m.logger.InfoContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"class", string(class),
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many requests, please try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check asks the primary store and routes to the fallback while the breaker
// is open. degraded reports a fallback answer.
func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.Result, bool, error) {
	result, err := m.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err == nil {
		usePrimary, change := m.breaker.RecordSuccess()
		if change.Closed {
			m.metrics.SetBreakerOpen(false)
			m.logger.InfoContext(ctx, "rate limit store recovered", "breaker", m.breaker.Name())
		}
		if usePrimary || m.fallback == nil {
			return result, false, nil
		}
		return m.fromFallback(ctx, key, limit, result)
	}

	useFallback, change := m.breaker.RecordFailure()
	if change.Opened {
		m.metrics.SetBreakerOpen(true)
		m.logger.WarnContext(ctx, "rate limit store failing, using in-process fallback",
			"breaker", m.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback || m.fallback == nil {
		return nil, false, err
	}
	return m.fromFallback(ctx, key, limit, nil)
}

// fromFallback answers from the fallback store, keeping primary (when set)
// if the fallback itself fails.
func (m *Middleware) fromFallback(ctx context.Context, key string, limit models.Limit, primary *models.Result) (*models.Result, bool, error) {
	m.metrics.IncrementFallback()
	result, err := m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err != nil {
		if primary != nil {
			return primary, false, nil
		}
		return nil, true, err
	}
	return result, true, nil
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
