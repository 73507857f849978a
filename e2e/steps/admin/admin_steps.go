package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetLastResponseBody() []byte
	GetApplicationID() string
}

// RegisterSteps registers admin dashboard step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &adminSteps{tc: tc}

	ctx.Step(`^I log in as admin$`, steps.loginAsAdmin)
	ctx.Step(`^I log in as admin with password "([^"]*)"$`, steps.loginWithPassword)
	ctx.Step(`^I log out$`, steps.logout)
	ctx.Step(`^I check my admin session$`, steps.checkSession)
	ctx.Step(`^I request the admin application list$`, steps.requestAdminList)
	ctx.Step(`^the stats should count at least (\d+) paid applications?$`, steps.statsShouldCountPaid)
	ctx.Step(`^I download the "(application|invoice)" document for the saved application$`, steps.downloadDocument)
}

type adminSteps struct {
	tc TestContext
}

func credentials() (string, string) {
	username := os.Getenv("E2E_ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("E2E_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
	}
	return username, password
}

func (s *adminSteps) loginAsAdmin(ctx context.Context) error {
	_, password := credentials()
	return s.loginWithPassword(ctx, password)
}

func (s *adminSteps) loginWithPassword(_ context.Context, password string) error {
	username, _ := credentials()
	return s.tc.POST("/api/admin/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
}

func (s *adminSteps) logout(_ context.Context) error {
	return s.tc.POST("/api/admin/auth/logout", nil)
}

func (s *adminSteps) checkSession(_ context.Context) error {
	return s.tc.GET("/api/admin/auth/verify")
}

func (s *adminSteps) requestAdminList(_ context.Context) error {
	return s.tc.GET("/api/admin/applications")
}

func (s *adminSteps) statsShouldCountPaid(_ context.Context, atLeast int) error {
	var resp struct {
		Stats struct {
			Total int `json:"total"`
			Paid  int `json:"paid"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &resp); err != nil {
		return fmt.Errorf("decode admin list: %w", err)
	}
	if resp.Stats.Paid < atLeast {
		return fmt.Errorf("expected at least %d paid applications, got %d", atLeast, resp.Stats.Paid)
	}
	if resp.Stats.Total < resp.Stats.Paid {
		return fmt.Errorf("total %d below paid %d", resp.Stats.Total, resp.Stats.Paid)
	}
	return nil
}

func (s *adminSteps) downloadDocument(_ context.Context, kind string) error {
	return s.tc.GET("/api/pdf/" + kind + "/" + s.tc.GetApplicationID())
}
