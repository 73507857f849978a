// Package admin authenticates the single back-office account and issues the
// session token carried in the admin cookie.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"formdesk/internal/admin/lockout"
	"formdesk/internal/admin/token"
	"formdesk/internal/audit"
	dErrors "formdesk/pkg/domain-errors"
	"formdesk/pkg/requestcontext"
)

// Credentials is the configured admin account. A bcrypt PasswordHash wins
// over a plain Password.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Session is a freshly issued admin token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Username  string
}

// Identity is the verified holder of an admin token.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

type Service struct {
	creds       Credentials
	tokens      *token.Service
	lockout     lockout.Store
	maxAttempts int
	window      time.Duration
	audit       AuditPublisher
	logger      *slog.Logger
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

// WithLockout replaces the in-memory failure counter and its limits.
func WithLockout(store lockout.Store, maxAttempts int, window time.Duration) Option {
	return func(s *Service) {
		s.lockout = store
		s.maxAttempts = maxAttempts
		s.window = window
	}
}

func NewService(creds Credentials, tokens *token.Service, opts ...Option) (*Service, error) {
	if creds.Username == "" {
		return nil, errors.New("admin username is required")
	}
	if creds.Password == "" && creds.PasswordHash == "" {
		return nil, errors.New("admin password or password hash is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	s := &Service{
		creds:       creds,
		tokens:      tokens,
		lockout:     lockout.NewInMemoryStore(),
		maxAttempts: defaultMaxAttempts,
		window:      defaultWindow,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login checks the credentials and issues a token. Clients that keep failing
// are locked out per IP until the failure window closes.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	key := lockoutKey(ctx)
	now := requestcontext.Now(ctx)

	failures, err := s.lockout.Failures(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read login failures")
	}
	if failures >= s.maxAttempts {
		s.emit(ctx, audit.NewEvent(ctx, audit.ActionAdminLockedOut, username))
		s.logger.WarnContext(ctx, "admin login locked out",
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", key,
			"failures", failures,
		)
		return nil, dErrors.New(dErrors.CodeRateLimited, "Zu viele fehlgeschlagene Anmeldeversuche")
	}

	if !s.matches(username, password) {
		count, err := s.lockout.RecordFailure(ctx, key, now, s.window)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
		}
		s.emit(ctx, audit.NewEvent(ctx, audit.ActionAdminLoginFailed, username).
			With("failures", strconv.Itoa(count)))
		s.logger.WarnContext(ctx, "admin login failed",
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", key,
			"failures", count,
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Ungültige Zugangsdaten")
	}

	if err := s.lockout.Clear(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "failed to clear login failures",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}

	signed, expiresAt, err := s.tokens.Issue(username)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "Anmeldung fehlgeschlagen")
	}

	event := audit.NewEvent(ctx, audit.ActionAdminLoginSucceeded, username)
	event.Actor = username
	s.emit(ctx, event)
	s.logger.InfoContext(ctx, "admin logged in",
		"request_id", requestcontext.RequestID(ctx),
		"admin", username,
	)
	return &Session{Token: signed, ExpiresAt: expiresAt, Username: username}, nil
}

// matches evaluates both fields regardless of the first result.
func (s *Service) matches(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.Username)) == 1
	var passOK bool
	if s.creds.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.creds.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.creds.Password)) == 1
	}
	return userOK && passOK
}

// Verify validates a token and requires the admin role.
func (s *Service) Verify(tokenString string) (*Identity, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != token.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "Keine Admin-Berechtigung")
	}
	return &Identity{Username: claims.Username, Role: claims.Role}, nil
}

// VerifyToken adapts Verify to the admin middleware.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	id, err := s.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return id.Username, nil
}

// Logout records the end of a session. Tokens are stateless; the cookie is
// cleared by the caller.
func (s *Service) Logout(ctx context.Context) {
	admin := requestcontext.Admin(ctx)
	s.emit(ctx, audit.NewEvent(ctx, audit.ActionAdminLogout, admin))
	s.logger.InfoContext(ctx, "admin logged out",
		"request_id", requestcontext.RequestID(ctx),
		"admin", admin,
	)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, event)
}

func lockoutKey(ctx context.Context) string {
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		return ip
	}
	return "unknown"
}
