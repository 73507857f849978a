package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formdesk/internal/application/models"
	"formdesk/internal/application/service"
	"formdesk/internal/payment/gateway"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/httputil"
	"formdesk/pkg/requestcontext"
)

// Service opens provider checkouts.
type Service interface {
	CreateCheckout(ctx context.Context, provider gateway.Provider, applicationID string) (*gateway.Checkout, error)
}

// Verifier completes a payment from the gateway return redirect.
type Verifier interface {
	VerifyPayment(ctx context.Context, req service.VerifyRequest) (*models.Application, error)
}

type Handler struct {
	logger   *slog.Logger
	payments Service
	verifier Verifier
	limit    func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit guards every payment route.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limit = mw
	}
}

func New(payments Service, verifier Verifier, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, payments: payments, verifier: verifier}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limit != nil {
			r.Use(h.limit)
		}
		r.Post("/api/payments/stripe/create-checkout", h.HandleCardCheckout)
		r.Post("/api/payments/paypal/create-order", h.HandleWalletOrder)
		r.Get("/api/payments/verify", h.HandleVerify)
	})
}

// CheckoutRequest is the checkout body. Amount is accepted for compatibility
// and ignored.
type CheckoutRequest struct {
	ApplicationID string   `json:"applicationId"`
	Amount        *float64 `json:"amount,omitempty"`
}

func (r *CheckoutRequest) Validate() error {
	if r.ApplicationID == "" {
		return dErrors.New(dErrors.CodeValidation, "applicationId is required")
	}
	return nil
}

type CardCheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

type WalletOrderResponse struct {
	ApprovalURL string `json:"approvalUrl"`
	OrderID     string `json:"orderId"`
}

func (h *Handler) HandleCardCheckout(w http.ResponseWriter, r *http.Request) {
	checkout, ok := h.checkout(w, r, gateway.ProviderCard)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CardCheckoutResponse{URL: checkout.RedirectURL, SessionID: checkout.Token})
}

func (h *Handler) HandleWalletOrder(w http.ResponseWriter, r *http.Request) {
	checkout, ok := h.checkout(w, r, gateway.ProviderWallet)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WalletOrderResponse{ApprovalURL: checkout.RedirectURL, OrderID: checkout.Token})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, provider gateway.Provider) (*gateway.Checkout, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CheckoutRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	if req.Amount != nil && math.Round(*req.Amount*100) != float64(models.FlatFeeCents) {
		h.logger.WarnContext(ctx, "ignoring client supplied checkout amount",
			"request_id", requestID,
			"application_id", req.ApplicationID,
			"amount", *req.Amount,
		)
	}

	checkout, err := h.payments.CreateCheckout(ctx, provider, req.ApplicationID)
	if err != nil {
		h.logger.InfoContext(ctx, "checkout rejected",
			"request_id", requestID,
			"provider", string(provider),
			"error", err,
		)
		httputil.WriteError(w, err)
		return nil, false
	}
	return checkout, true
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	app, err := h.verifier.VerifyPayment(ctx, service.VerifyRequest{
		SessionID:     q.Get(gateway.ParamSessionID),
		WalletOrderID: q.Get(gateway.ParamWalletOrderID),
		ApplicationID: q.Get(gateway.ParamApplicationID),
	})
	if err != nil {
		level := slog.LevelInfo
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "payment verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app.View())
}
