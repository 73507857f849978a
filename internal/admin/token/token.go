package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "formdesk/pkg/domain-errors"
)

// RoleAdmin is the only role that unlocks the admin surface.
const RoleAdmin = "admin"

// DefaultTTL is how long an admin session lasts.
const DefaultTTL = 24 * time.Hour

// Claims are the admin token claims. iat and exp come from RegisteredClaims.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 admin tokens.
type Service struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(signingKey string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		ttl:        DefaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs an admin token for username and returns it with its expiry.
func (s *Service) Issue(username string) (string, time.Time, error) {
	return s.issue(username, RoleAdmin)
}

func (s *Service) issue(username, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature and expiry. It does not check the role.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "Token abgelaufen")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Ungültiger Token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "Ungültiger Token")
	}
	return claims, nil
}
