package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"formdesk/internal/application/models"
	"formdesk/internal/audit"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/sentinel"
	"formdesk/pkg/requestcontext"
)

// VerifyRequest carries the query parameters of a gateway return redirect.
type VerifyRequest struct {
	SessionID     string
	WalletOrderID string
	ApplicationID string
}

// token picks the correlation token; a card session wins over a wallet order.
func (r VerifyRequest) token() (string, models.PaymentMethod) {
	if r.SessionID != "" {
		return r.SessionID, models.PaymentCard
	}
	if r.WalletOrderID != "" {
		return r.WalletOrderID, models.PaymentWallet
	}
	return "", ""
}

// VerifyPayment marks the referenced application paid and fires delivery.
// Repeated or concurrent calls converge on the same paid record, and only the
// call that performed the transition delivers. A delivery failure is logged
// and counted but never undoes the payment.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyRequest) (*models.Application, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveVerifyDuration(time.Since(start).Seconds()) }()

	ctx, span := s.tracer.Start(ctx, "application.VerifyPayment")
	defer span.End()

	token, method := req.token()
	if token == "" {
		span.SetStatus(codes.Error, "missing token")
		return nil, dErrors.New(dErrors.CodeValidation, "Payment session not found")
	}
	span.SetAttributes(attribute.String("payment.method", string(method)))

	app, err := s.resolve(ctx, req.ApplicationID, token)
	if err != nil {
		span.SetStatus(codes.Error, "unresolved application")
		return nil, err
	}
	span.SetAttributes(attribute.String("application.id", app.ID.String()))

	if app.Status.IsPaid() {
		s.metrics.IncrementDuplicateVerifications()
		return app, nil
	}

	payment := models.Payment{Method: method, ID: token, AmountCents: models.FlatFeeCents}
	paid, err := s.store.MarkPaid(ctx, app.ID, payment, requestcontext.Now(ctx).UTC())
	switch {
	case errors.Is(err, sentinel.ErrInvalidState):
		// Lost the race; the winner delivers.
		s.metrics.IncrementDuplicateVerifications()
		current, findErr := s.store.FindByID(ctx, app.ID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load application")
		}
		return current, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark paid failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
	}

	s.metrics.IncrementVerified(string(method))
	s.logAudit(ctx, audit.NewEvent(ctx, audit.ActionPaymentVerified, paid.ID.String()).
		With("payment_method", string(method)).
		With("payment_id", token))
	s.logger.InfoContext(ctx, "payment verified",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", paid.ID.String(),
		"payment_method", string(method),
	)

	s.deliver(ctx, paid)
	return paid, nil
}

// resolve finds the application by explicit id, falling back to a record
// already linked to the token.
func (s *Service) resolve(ctx context.Context, rawID, token string) (*models.Application, error) {
	if rawID != "" {
		return s.Get(ctx, rawID)
	}
	app, err := s.store.FindByPaymentID(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// deliver runs detached from client cancellation so a dropped connection does
// not abort a letter mid-flight.
func (s *Service) deliver(ctx context.Context, app *models.Application) {
	ctx, span := s.tracer.Start(ctx, "application.Deliver")
	defer span.End()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout)
	defer cancel()

	dispatches, err := s.notifier.Deliver(dctx, app)
	span.SetAttributes(attribute.Int("delivery.dispatches", len(dispatches)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		s.metrics.IncrementDeliveryFailures()
		s.logger.ErrorContext(ctx, "document delivery failed",
			"request_id", requestcontext.RequestID(ctx),
			"application_id", app.ID.String(),
			"delivered_channels", len(dispatches),
			"error", err,
		)
	}
}
