package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/mssola/useragent"

	"formdesk/pkg/requestcontext"
)

// Action names an audited business event.
type Action string

const (
	ActionApplicationSubmitted Action = "application_submitted"
	ActionPaymentVerified      Action = "payment_verified"
	ActionDocumentDownloaded   Action = "document_downloaded"
	ActionAdminLoginSucceeded  Action = "admin_login_succeeded"
	ActionAdminLoginFailed     Action = "admin_login_failed"
	ActionAdminLockedOut       Action = "admin_locked_out"
	ActionAdminLogout          Action = "admin_logout"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    Action            `json:"action"`
	Subject   string            `json:"subject,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	ClientIP  string            `json:"clientIp,omitempty"`
	Client    string            `json:"client,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// NewEvent fills request correlation, client metadata and the acting admin
// from ctx.
func NewEvent(ctx context.Context, action Action, subject string) Event {
	return Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Subject:   subject,
		Actor:     requestcontext.Admin(ctx),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Client:    DescribeUserAgent(requestcontext.UserAgent(ctx)),
	}
}

// With adds a detail entry and returns the event.
func (e Event) With(key, value string) Event {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// DescribeUserAgent reduces a User-Agent header to "Browser Version on OS".
func DescribeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}
