package testutil

import (
	"net/http"
	"time"

	"formdesk/pkg/requestcontext"
)

// AsAdmin marks the request as coming from an authenticated admin, the state
// RequireAdmin leaves behind.
func AsAdmin(req *http.Request, username string) *http.Request {
	return req.WithContext(requestcontext.WithAdmin(req.Context(), username))
}

// AtTime pins the request-scoped clock.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// FromClient sets the client IP and User-Agent the metadata middleware would extract.
func FromClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
