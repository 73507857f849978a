package e2e

import (
	"github.com/cucumber/godog"

	"formdesk/e2e/steps/admin"
	"formdesk/e2e/steps/applications"
	"formdesk/e2e/steps/common"
	"formdesk/e2e/steps/payments"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	applications.RegisterSteps(ctx, tc)
	payments.RegisterSteps(ctx, tc)
	admin.RegisterSteps(ctx, tc)
}
