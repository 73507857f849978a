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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"formdesk/internal/admin"
	adminhandler "formdesk/internal/admin/handler"
	"formdesk/internal/admin/lockout"
	"formdesk/internal/admin/token"
	appmetrics "formdesk/internal/application/metrics"
	apphandler "formdesk/internal/application/handler"
	appservice "formdesk/internal/application/service"
	"formdesk/internal/delivery"
	"formdesk/internal/document"
	dochandler "formdesk/internal/document/handler"
	"formdesk/internal/payment"
	"formdesk/internal/payment/gateway"
	paymenthandler "formdesk/internal/payment/handler"
	"formdesk/internal/platform/config"
	"formdesk/internal/platform/httpserver"
	"formdesk/internal/platform/logger"
	"formdesk/internal/platform/metrics"
	rlmetrics "formdesk/internal/ratelimit/metrics"
	rlmiddleware "formdesk/internal/ratelimit/middleware"
	rlmodels "formdesk/internal/ratelimit/models"
	"formdesk/internal/ratelimit/store/bucket"
	httptransport "formdesk/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("formdesk stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	healthChecks := map[string]httptransport.HealthCheck{}

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()
	if infra.db != nil {
		healthChecks["postgres"] = infra.db.PingContext
	}
	if infra.redis != nil {
		healthChecks["redis"] = infra.redis.Health
	}

	auditPublisher, stopAudit, err := buildAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stopAudit()

	// Applications and delivery
	notifier := delivery.NewNotifier(
		buildEmailSender(cfg, log),
		delivery.NewSimulatedPostal(cfg.Delivery.PostalDelay, log),
		infra.deliveryLog,
		delivery.WithLogger(log),
	)
	apps, err := appservice.New(infra.applications, notifier,
		appservice.WithLogger(log),
		appservice.WithMetrics(appmetrics.New(reg)),
		appservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	// Admin auth
	var lockoutStore lockout.Store = lockout.NewInMemoryStore()
	if infra.redis != nil {
		lockoutStore = lockout.NewRedisStore(infra.redis.Client)
	}
	auth, err := admin.NewService(
		admin.Credentials{
			Username:     cfg.Admin.Username,
			Password:     cfg.Admin.Password,
			PasswordHash: cfg.Admin.PasswordHash,
		},
		token.NewService(cfg.JWTSigningKey),
		admin.WithLogger(log),
		admin.WithAuditPublisher(auditPublisher),
		admin.WithLockout(lockoutStore, cfg.Lockout.MaxAttempts, cfg.Lockout.Window),
	)
	if err != nil {
		return err
	}

	payments := payment.NewService(apps, gateway.NewRegistry(
		gateway.NewCardGateway(cfg.PaymentReturnURL),
		gateway.NewWalletGateway(cfg.PaymentReturnURL),
	), payment.WithLogger(log))

	docs := document.NewService(infra.applications,
		document.WithLogger(log),
		document.WithAuditPublisher(auditPublisher),
	)

	limiter := buildRateLimiter(cfg, infra, reg, log)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:       log,
		Latency:      metrics.NewHTTP(reg),
		Metrics:      metrics.Handler(reg),
		HealthChecks: healthChecks,
	},
		apphandler.New(apps, auth, log, apphandler.WithRateLimit(limiter.RateLimit(rlmodels.ClassIntake))),
		paymenthandler.New(payments, apps, log, paymenthandler.WithRateLimit(limiter.RateLimit(rlmodels.ClassPayment))),
		dochandler.New(docs, auth, log),
		adminhandler.New(auth, cfg.CookieSecure, log),
	)

	srv := httpserver.New(cfg.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting formdesk", "addr", cfg.Addr, "store_backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

func buildEmailSender(cfg config.Server, log *slog.Logger) delivery.EmailSender {
	if cfg.Mailjet.Enabled() {
		log.Info("email delivery via mailjet", "sender", cfg.Mailjet.Sender)
		return delivery.NewMailjetSender(cfg.Mailjet.APIKey, cfg.Mailjet.SecretKey, cfg.Mailjet.Sender)
	}
	return delivery.NewSimulatedSender(cfg.Delivery.EmailDelay, log)
}

// buildRateLimiter shares budgets across replicas through Postgres when it is
// configured, falling back to process memory while the database is failing.
func buildRateLimiter(cfg config.Server, infra *infra, reg prometheus.Registerer, log *slog.Logger) *rlmiddleware.Middleware {
	opts := []rlmiddleware.Option{
		rlmiddleware.WithDisabled(cfg.RateLimit.Disabled),
		rlmiddleware.WithMetrics(rlmetrics.New(reg)),
		rlmiddleware.WithLimits(map[rlmodels.EndpointClass]rlmodels.Limit{
			rlmodels.ClassIntake:  {RequestsPerWindow: cfg.RateLimit.IntakePerWindow, Window: cfg.RateLimit.Window},
			rlmodels.ClassPayment: {RequestsPerWindow: cfg.RateLimit.PaymentPerWindow, Window: cfg.RateLimit.Window},
		}),
	}
	if infra.db != nil {
		opts = append(opts, rlmiddleware.WithFallback(bucket.NewInMemoryBucketStore()))
		return rlmiddleware.New(bucket.NewPostgres(infra.db), log, opts...)
	}
	return rlmiddleware.New(bucket.NewInMemoryBucketStore(), log, opts...)
}
