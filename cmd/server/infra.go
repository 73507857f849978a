package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	appservice "formdesk/internal/application/service"
	"formdesk/internal/application/store"
	"formdesk/internal/audit"
	"formdesk/internal/delivery"
	"formdesk/internal/platform/config"
	"formdesk/internal/platform/postgres"
	"formdesk/internal/platform/redis"
)

const (
	auditQueueSize    = 256
	auditDrainTimeout = 5 * time.Second
)

type infra struct {
	db           *sql.DB
	redis        *redis.Client
	applications appservice.Store
	deliveryLog  delivery.Log
}

func (i *infra) Close() {
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

// openInfra connects the configured backends. Postgres also backs the
// delivery log; Redis is optional everywhere.
func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	out := &infra{deliveryLog: delivery.NewInMemoryLog()}

	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		out.db = db
		if err := postgres.Migrate(db); err != nil {
			out.Close()
			return nil, err
		}
		out.applications = store.NewPostgres(db)
		out.deliveryLog = delivery.NewPostgresLog(db)
	case config.StoreFile:
		fs, err := store.NewFileStore(cfg.DataFile)
		if err != nil {
			return nil, err
		}
		out.applications = fs
	default:
		out.applications = store.NewInMemoryStore()
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.redis = client

	log.Info("infrastructure ready",
		"store_backend", cfg.StoreBackend,
		"postgres", out.db != nil,
		"redis", out.redis != nil,
	)
	return out, nil
}

// buildAudit returns a publisher and a stop func that drains pending events.
// Without Kafka brokers events stay in memory.
func buildAudit(ctx context.Context, cfg config.Server, log *slog.Logger) (*audit.Publisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewPublisher(audit.NewInMemoryStore(), audit.WithLogger(log)), func() {}, nil
	}

	sink, err := audit.NewKafkaStore(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("audit sink: %w", err)
	}

	queue := make(chan audit.Event, auditQueueSize)
	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = audit.NewWorker(sink, queue, log).Run(workerCtx)
	}()

	// The queue is never closed so a late Emit cannot panic; stop waits for
	// it to empty instead.
	stop := func() {
		deadline := time.Now().Add(auditDrainTimeout)
		for len(queue) > 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		if n := len(queue); n > 0 {
			log.Warn("audit events dropped at shutdown", "pending", n)
		}
		cancel()
		<-done
		sink.Close()
	}
	return audit.NewPublisher(sink, audit.WithLogger(log), audit.WithQueue(queue)), stop, nil
}
