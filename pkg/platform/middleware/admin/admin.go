package admin

import (
	"log/slog"
	"net/http"

	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/platform/httputil"
	"formdesk/pkg/requestcontext"
)

// CookieName is the cookie carrying the signed admin token.
const CookieName = "admin-token"

// TokenVerifier validates an admin token and returns the admin username.
// Implementations return CodeUnauthorized for missing, malformed or expired
// tokens and CodeForbidden when the token does not assert the admin role.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// TokenFromRequest returns the admin token cookie value, or "".
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequireAdmin rejects requests without a valid admin token cookie and puts
// the admin username into the request context.
func RequireAdmin(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token := TokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized admin access - missing token",
					"request_id", requestID,
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Nicht authentifiziert"))
				return
			}

			username, err := verifier.VerifyToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized admin access - token rejected",
					"request_id", requestID,
					"path", r.URL.Path,
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdmin(ctx, username)))
		})
	}
}
