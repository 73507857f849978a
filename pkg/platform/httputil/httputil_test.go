package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "formdesk/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error hides message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal server error" {
			t.Fatalf("expected generic message, got %q", body["error"])
		}
		if body["code"] != "internal_error" {
			t.Fatalf("expected code internal_error, got %q", body["code"])
		}
	})

	t.Run("validation error includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "Field email is required"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "Field email is required" {
			t.Fatalf("expected validation message, got %q", body["error"])
		}
	})

	t.Run("payment failure uses fixed message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodePaymentFailed, "entropy exhausted"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		if !strings.Contains(w.Body.String(), "payment processing failed") {
			t.Fatalf("unexpected body %s", w.Body.String())
		}
	})
}

type loginBody struct {
	Username string `json:"username"`
}

func (b *loginBody) Validate() error {
	if b.Username == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("malformed json", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
		_, ok := DecodeAndPrepare[loginBody](w, r, logger, r.Context(), "req-1")
		if ok {
			t.Fatal("expected decode failure")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("validation runs", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":""}`))
		_, ok := DecodeAndPrepare[loginBody](w, r, logger, r.Context(), "req-2")
		if ok {
			t.Fatal("expected validation failure")
		}
		if !strings.Contains(w.Body.String(), "username is required") {
			t.Fatalf("unexpected body %s", w.Body.String())
		}
	})

	t.Run("valid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"admin"}`))
		req, ok := DecodeAndPrepare[loginBody](w, r, logger, r.Context(), "req-3")
		if !ok {
			t.Fatalf("expected success, got %d %s", w.Code, w.Body.String())
		}
		if req.Username != "admin" {
			t.Fatalf("unexpected username %q", req.Username)
		}
	})
}
