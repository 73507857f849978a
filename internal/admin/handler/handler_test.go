package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"formdesk/internal/admin"
	"formdesk/internal/admin/handler/mocks"
	dErrors "formdesk/pkg/domain-errors"
	adminmw "formdesk/pkg/platform/middleware/admin"
	"formdesk/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type AdminHandlerSuite struct {
	suite.Suite
	auth   *mocks.MockService
	router chi.Router
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	s.auth = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.auth, true, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *AdminHandlerSuite) TestLogin() {
	s.Run("sets the session cookie", func() {
		s.auth.EXPECT().Login(gomock.Any(), "admin", "admin123").Return(&admin.Session{
			Token:     "signed.jwt.token",
			ExpiresAt: time.Now().Add(24 * time.Hour),
			Username:  "admin",
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/auth/login",
			LoginRequest{Username: "admin", Password: "admin123"}))

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[MessageResponse](s.T(), rr)
		s.True(resp.Success)

		cookie := testutil.FindCookie(rr, adminmw.CookieName)
		s.Require().NotNil(cookie)
		s.Equal("signed.jwt.token", cookie.Value)
		s.Equal("/", cookie.Path)
		s.Equal(86400, cookie.MaxAge)
		s.True(cookie.HttpOnly)
		s.True(cookie.Secure)
		s.Equal(http.SameSiteStrictMode, cookie.SameSite)
	})

	s.Run("bad credentials", func() {
		s.auth.EXPECT().Login(gomock.Any(), "admin", "wrong").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "Ungültige Zugangsdaten"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/auth/login",
			LoginRequest{Username: "admin", Password: "wrong"}))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "Ungültige Zugangsdaten")
		s.Nil(testutil.FindCookie(rr, adminmw.CookieName))
	})

	s.Run("locked out", func() {
		s.auth.EXPECT().Login(gomock.Any(), "admin", "admin123").
			Return(nil, dErrors.New(dErrors.CodeRateLimited, "Zu viele fehlgeschlagene Anmeldeversuche"))

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/auth/login",
			LoginRequest{Username: "admin", Password: "admin123"}))

		testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)
	})

	s.Run("empty fields", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/admin/auth/login",
			LoginRequest{Username: "admin"}))
		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	})
}

func (s *AdminHandlerSuite) TestVerify() {
	s.Run("no cookie", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/api/admin/auth/verify", ""))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "Nicht authentifiziert")
	})

	s.Run("valid token", func() {
		s.auth.EXPECT().Verify("good").Return(&admin.Identity{Username: "admin", Role: "admin"}, nil)

		req := testutil.WithCookie(testutil.NewRequestWithBody(s.T(), http.MethodGet, "/api/admin/auth/verify", ""), adminmw.CookieName, "good")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[VerifyResponse](s.T(), rr)
		s.True(resp.Success)
		s.Equal(&admin.Identity{Username: "admin", Role: "admin"}, resp.User)
	})

	s.Run("non-admin token", func() {
		s.auth.EXPECT().Verify("user").Return(nil, dErrors.New(dErrors.CodeForbidden, "Keine Admin-Berechtigung"))

		req := testutil.WithCookie(testutil.NewRequestWithBody(s.T(), http.MethodGet, "/api/admin/auth/verify", ""), adminmw.CookieName, "user")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "Keine Admin-Berechtigung")
	})
}

func (s *AdminHandlerSuite) TestLogout() {
	s.Run("clears the cookie", func() {
		s.auth.EXPECT().VerifyToken("good").Return("admin", nil)
		s.auth.EXPECT().Logout(gomock.Any())

		req := testutil.WithCookie(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/admin/auth/logout", ""), adminmw.CookieName, "good")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		cookie := testutil.FindCookie(rr, adminmw.CookieName)
		s.Require().NotNil(cookie)
		s.Empty(cookie.Value)
		s.Negative(cookie.MaxAge)
	})

	s.Run("requires a session", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/admin/auth/logout", ""))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}
