package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"formdesk/internal/document"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/httputil"
	adminmw "formdesk/pkg/platform/middleware/admin"
	"formdesk/pkg/requestcontext"
)

// Service renders downloadable documents.
type Service interface {
	Application(ctx context.Context, id string) (*document.Document, error)
	Invoice(ctx context.Context, id string) (*document.Document, error)
}

// Handler serves admin-only document downloads.
type Handler struct {
	logger   *slog.Logger
	docs     Service
	verifier adminmw.TokenVerifier
}

func New(docs Service, verifier adminmw.TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, docs: docs, verifier: verifier}
}

// Register mounts the download routes behind RequireAdmin.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdmin(h.verifier, h.logger))
		r.Get("/api/pdf/application/{id}", h.HandleApplication)
		r.Get("/api/pdf/invoice/{id}", h.HandleInvoice)
	})
}

func (h *Handler) HandleApplication(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "application", h.docs.Application)
}

func (h *Handler) HandleInvoice(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "invoice", h.docs.Invoice)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, kind string, render func(context.Context, string) (*document.Document, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id := chi.URLParam(r, "id")

	doc, err := render(ctx, id)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "document generation failed",
				"request_id", requestID,
				"document", kind,
				"application_id", id,
				"error", err,
			)
		} else {
			h.logger.InfoContext(ctx, "document request rejected",
				"request_id", requestID,
				"document", kind,
				"application_id", id,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}
