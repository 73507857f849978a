// Package payment starts checkouts for submitted applications. The
// verification step that completes a payment lives with the application
// lifecycle.
package payment

import (
	"context"
	"log/slog"

	"formdesk/internal/application/models"
	"formdesk/internal/payment/gateway"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/requestcontext"
)

// ApplicationFinder resolves the application a checkout is for.
type ApplicationFinder interface {
	Get(ctx context.Context, id string) (*models.Application, error)
}

type Service struct {
	apps     ApplicationFinder
	gateways *gateway.Registry
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(apps ApplicationFinder, gateways *gateway.Registry, opts ...Option) *Service {
	s := &Service{apps: apps, gateways: gateways, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCheckout opens a checkout for a pending application. The amount is
// always the flat fee regardless of what the client asked for.
func (s *Service) CreateCheckout(ctx context.Context, provider gateway.Provider, applicationID string) (*gateway.Checkout, error) {
	g, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.IsPaid() {
		return nil, dErrors.New(dErrors.CodeConflict, "Application already paid")
	}

	checkout, err := g.CreateCheckout(ctx, app.ID, models.FlatFeeCents)
	if err != nil {
		s.logger.ErrorContext(ctx, "checkout creation failed",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", app.ID.String(),
			"provider", string(provider),
			"error", err,
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout created",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID.String(),
		"provider", string(provider),
		"token", checkout.Token,
	)
	return checkout, nil
}
