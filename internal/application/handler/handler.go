package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formdesk/internal/application/models"
	"formdesk/internal/application/service"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/httputil"
	adminmw "formdesk/pkg/platform/middleware/admin"
	"formdesk/pkg/requestcontext"
)

// Service defines the interface for application lifecycle operations.
type Service interface {
	Submit(ctx context.Context, applicant models.Applicant) (*models.Application, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context) (*service.Listing, error)
}

// Handler handles intake and listing endpoints.
type Handler struct {
	logger   *slog.Logger
	apps     Service
	verifier adminmw.TokenVerifier
	limit    func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithRateLimit guards the intake route.
func WithRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limit = mw
	}
}

func New(apps Service, verifier adminmw.TokenVerifier, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, apps: apps, verifier: verifier, limit: passThrough}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func passThrough(next http.Handler) http.Handler { return next }

func (h *Handler) Register(r chi.Router) {
	r.With(h.limit).Post("/api/applications", h.HandleSubmit)
	r.Get("/api/applications", h.HandleList)
	r.Get("/api/applications/{id}", h.HandleGet)

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdmin(h.verifier, h.logger))
		r.Get("/api/admin/applications", h.HandleAdminList)
	})
}

// SubmitRequest is the intake form body.
type SubmitRequest struct {
	models.Applicant
}

// Validate trims the payload before checking it so padded values are accepted.
func (r *SubmitRequest) Validate() error {
	r.Applicant.Normalize()
	return r.Applicant.Validate()
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type ListResponse struct {
	Applications []models.View `json:"applications"`
}

type AdminListResponse struct {
	Applications []models.View `json:"applications"`
	Stats        models.Stats  `json:"stats"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.apps.Submit(ctx, req.Applicant)
	if err != nil {
		h.writeFailure(ctx, w, "submit", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SubmitResponse{
		Success: true,
		ID:      app.ID.String(),
		Message: "Application submitted successfully",
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, err := h.apps.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app.View())
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listing, err := h.apps.List(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "list", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Applications: models.Views(listing.Applications)})
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listing, err := h.apps.List(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "admin list", err)
		return
	}
	h.logger.InfoContext(ctx, "admin listed applications",
		"request_id", requestcontext.RequestID(ctx),
		"admin", requestcontext.Admin(ctx),
		"count", len(listing.Applications),
	)
	httputil.WriteJSON(w, http.StatusOK, AdminListResponse{
		Applications: models.Views(listing.Applications),
		Stats:        listing.Stats,
	})
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "application request failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"error", err,
		)
	} else {
		h.logger.InfoContext(ctx, "application request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
