package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"formdesk/internal/admin"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/httputil"
	adminmw "formdesk/pkg/platform/middleware/admin"
	"formdesk/pkg/requestcontext"
)

// Service defines the admin authentication operations.
type Service interface {
	Login(ctx context.Context, username, password string) (*admin.Session, error)
	Verify(token string) (*admin.Identity, error)
	VerifyToken(token string) (string, error)
	Logout(ctx context.Context)
}

type Handler struct {
	logger       *slog.Logger
	auth         Service
	cookieSecure bool
}

func New(auth Service, cookieSecure bool, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, auth: auth, cookieSecure: cookieSecure}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/admin/auth/login", h.HandleLogin)
	r.Get("/api/admin/auth/verify", h.HandleVerify)

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdmin(h.auth, h.logger))
		r.Post("/api/admin/auth/logout", h.HandleLogout)
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "Benutzername und Passwort sind erforderlich")
	}
	return nil
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyResponse struct {
	Success bool            `json:"success"`
	User    *admin.Identity `json:"user"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "admin login error",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, int(math.Round(time.Until(session.ExpiresAt).Seconds()))))
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Erfolgreich angemeldet"})
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := adminmw.TokenFromRequest(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Nicht authentifiziert"))
		return
	}

	id, err := h.auth.Verify(token)
	if err != nil {
		h.logger.InfoContext(ctx, "admin token rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Success: true, User: id})
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context())
	http.SetCookie(w, h.sessionCookie("", -1))
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Erfolgreich abgemeldet"})
}

// sessionCookie builds the admin cookie. A negative maxAge deletes it.
func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     adminmw.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}
