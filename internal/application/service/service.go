package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"formdesk/internal/application/metrics"
	"formdesk/internal/application/models"
	"formdesk/internal/audit"
	"formdesk/internal/delivery"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/sentinel"
	"formdesk/pkg/requestcontext"
)

// Store persists applications. MarkPaid must be atomic: it succeeds for
// exactly one caller while the record is pending and returns
// sentinel.ErrInvalidState afterwards.
type Store interface {
	Save(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Application, error)
	ListAll(ctx context.Context) ([]*models.Application, error)
	MarkPaid(ctx context.Context, id uuid.UUID, payment models.Payment, now time.Time) (*models.Application, error)
}

// Notifier sends the documents of a freshly paid application.
type Notifier interface {
	Deliver(ctx context.Context, app *models.Application) ([]delivery.Dispatch, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const defaultDeliveryTimeout = 30 * time.Second

// Service owns the application lifecycle: intake, payment verification and
// the admin listing.
type Service struct {
	store           Store
	notifier        Notifier
	audit           AuditPublisher
	metrics         *metrics.Metrics
	logger          *slog.Logger
	tracer          trace.Tracer
	deliveryTimeout time.Duration
	newID           func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

// WithDeliveryTimeout bounds how long VerifyPayment waits for delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.deliveryTimeout = d
	}
}

// WithIDGenerator replaces uuid.New for deterministic tests.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store Store, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("application store is required")
	}
	if notifier == nil {
		return nil, errors.New("delivery notifier is required")
	}
	s := &Service{
		store:           store,
		notifier:        notifier,
		logger:          slog.Default(),
		tracer:          otel.Tracer("formdesk/application"),
		deliveryTimeout: defaultDeliveryTimeout,
		newID:           uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit validates the applicant and stores a new pending application.
func (s *Service) Submit(ctx context.Context, applicant models.Applicant) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, "application.Submit")
	defer span.End()

	applicant.Normalize()
	if err := applicant.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	app := models.NewApplication(s.newID(), applicant, requestcontext.Now(ctx).UTC())
	span.SetAttributes(
		attribute.String("application.id", app.ID.String()),
		attribute.String("application.delivery_method", string(app.DeliveryMethod)),
	)

	if err := s.store.Save(ctx, app); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
	}

	s.metrics.IncrementSubmitted(string(app.DeliveryMethod))
	s.logAudit(ctx, audit.NewEvent(ctx, audit.ActionApplicationSubmitted, app.ID.String()).
		With("delivery_method", string(app.DeliveryMethod)))
	s.logger.InfoContext(ctx, "application submitted",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID.String(),
		"delivery_method", string(app.DeliveryMethod),
	)
	return app, nil
}

// Get returns one application. Unknown and malformed ids are both not found.
func (s *Service) Get(ctx context.Context, rawID string) (*models.Application, error) {
	id, err := models.ParseID(rawID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
	}
	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// Listing is the admin dashboard view.
type Listing struct {
	Applications []*models.Application
	Stats        models.Stats
}

// List returns all applications newest first with dashboard stats.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	ctx, span := s.tracer.Start(ctx, "application.List")
	defer span.End()

	apps, err := s.store.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	span.SetAttributes(attribute.Int("application.count", len(apps)))
	return &Listing{Applications: apps, Stats: models.ComputeStats(apps)}, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	// Audit is best effort; the publisher logs its own failures.
	_ = s.audit.Emit(ctx, event)
}
