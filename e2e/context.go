package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// TestContext carries the HTTP client and the state one scenario builds up.
// The cookie jar keeps the admin session between steps.
type TestContext struct {
	baseURL string
	client  *http.Client

	lastStatus int
	lastHeader http.Header
	lastBody   []byte

	applicationID string
	paymentToken  string
	returnURL     string
}

func NewTestContext(baseURL string) *TestContext {
	tc := &TestContext{baseURL: strings.TrimRight(baseURL, "/")}
	tc.Reset()
	return tc
}

// Reset starts a scenario with a fresh client and no saved state.
func (tc *TestContext) Reset() {
	jar, _ := cookiejar.New(nil)
	tc.client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	tc.lastStatus = 0
	tc.lastHeader = nil
	tc.lastBody = nil
	tc.applicationID = ""
	tc.paymentToken = ""
	tc.returnURL = ""
}

func (tc *TestContext) POST(path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	return tc.do(http.MethodPost, path, reader)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body io.Reader) error {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = tc.baseURL + path
	}
	req, err := http.NewRequestWithContext(context.Background(), method, target, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal(tc.lastBody, &payload); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w (body: %s)", err, tc.lastBody)
	}
	value, ok := payload[field]
	if !ok {
		return nil, fmt.Errorf("field %q missing from response: %s", field, tc.lastBody)
	}
	return value, nil
}

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader() http.Header { return tc.lastHeader }

func (tc *TestContext) GetApplicationID() string { return tc.applicationID }
func (tc *TestContext) SetApplicationID(id string) { tc.applicationID = id }

func (tc *TestContext) GetPaymentToken() string { return tc.paymentToken }
func (tc *TestContext) GetReturnURL() string { return tc.returnURL }

func (tc *TestContext) SetCheckout(token, returnURL string) {
	tc.paymentToken = token
	tc.returnURL = returnURL
}
