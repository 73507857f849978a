package document

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"formdesk/internal/application/models"
	"formdesk/internal/audit"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/sentinel"
)

// Finder is the read side of the application store.
type Finder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error)
}

// AuditPublisher records downloads.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service serves documents for paid applications.
type Service struct {
	apps   Finder
	audit  AuditPublisher
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func NewService(apps Finder, opts ...Option) *Service {
	s := &Service{apps: apps, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Application renders the application summary.
func (s *Service) Application(ctx context.Context, rawID string) (*Document, error) {
	app, err := s.paidApplication(ctx, rawID)
	if err != nil {
		return nil, err
	}
	doc := RenderApplication(app)
	s.recordDownload(ctx, app, "application")
	return &doc, nil
}

// Invoice renders the invoice.
func (s *Service) Invoice(ctx context.Context, rawID string) (*Document, error) {
	app, err := s.paidApplication(ctx, rawID)
	if err != nil {
		return nil, err
	}
	doc := RenderInvoice(app)
	s.recordDownload(ctx, app, "invoice")
	return &doc, nil
}

func (s *Service) paidApplication(ctx context.Context, rawID string) (*models.Application, error) {
	id, err := models.ParseID(rawID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
	}
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	if !app.Status.IsPaid() {
		return nil, dErrors.New(dErrors.CodeForbidden, "Application not yet paid")
	}
	return app, nil
}

func (s *Service) recordDownload(ctx context.Context, app *models.Application, kind string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.NewEvent(ctx, audit.ActionDocumentDownloaded, app.ID.String()).With("document", kind))
}
