package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrQueueFull is returned by an asynchronous publisher when its buffer is full.
var ErrQueueFull = errors.New("audit queue full")

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. With a queue
// configured, Emit hands events to a Worker instead of writing inline.
type Publisher struct {
	store  Store
	queue  chan<- Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithQueue makes Emit non-blocking; a Worker must drain the other end.
func WithQueue(queue chan<- Event) Option {
	return func(p *Publisher) {
		p.queue = queue
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records an event. Failures are logged and returned; callers treat audit
// as best effort and never fail the business operation on it.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.queue != nil {
		select {
		case p.queue <- event:
			return nil
		default:
			p.logger.WarnContext(ctx, "audit queue full, event dropped",
				"action", event.Action,
				"subject", event.Subject,
				"request_id", event.RequestID,
			)
			return ErrQueueFull
		}
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"action", event.Action,
			"subject", event.Subject,
			"request_id", event.RequestID,
			"error", err,
		)
		return err
	}
	return nil
}
