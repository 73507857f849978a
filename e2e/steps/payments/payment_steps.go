package payments

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetApplicationID() string
	GetPaymentToken() string
	GetReturnURL() string
	SetCheckout(token, returnURL string)
}

// RegisterSteps registers checkout and verification step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &paymentSteps{tc: tc}

	ctx.Step(`^I start a "(stripe|paypal)" checkout for the saved application$`, steps.startCheckout)
	ctx.Step(`^I save the checkout$`, steps.saveCheckout)
	ctx.Step(`^I return from the payment provider$`, steps.followReturnURL)
	ctx.Step(`^I verify the payment by token only$`, steps.verifyByTokenOnly)
	ctx.Step(`^I verify without a payment token$`, steps.verifyWithoutToken)
}

type paymentSteps struct {
	tc       TestContext
	provider string
}

func (s *paymentSteps) startCheckout(_ context.Context, provider string) error {
	s.provider = provider
	path := "/api/payments/stripe/create-checkout"
	if provider == "paypal" {
		path = "/api/payments/paypal/create-order"
	}
	return s.tc.POST(path, map[string]any{"applicationId": s.tc.GetApplicationID()})
}

func (s *paymentSteps) saveCheckout(_ context.Context) error {
	tokenField, urlField := "sessionId", "url"
	if s.provider == "paypal" {
		tokenField, urlField = "orderId", "approvalUrl"
	}
	token, err := s.tc.GetResponseField(tokenField)
	if err != nil {
		return err
	}
	returnURL, err := s.tc.GetResponseField(urlField)
	if err != nil {
		return err
	}
	s.tc.SetCheckout(fmt.Sprint(token), fmt.Sprint(returnURL))
	return nil
}

func (s *paymentSteps) followReturnURL(_ context.Context) error {
	if s.tc.GetReturnURL() == "" {
		return fmt.Errorf("no checkout saved")
	}
	return s.tc.GET(s.tc.GetReturnURL())
}

func (s *paymentSteps) verifyByTokenOnly(_ context.Context) error {
	param := "session_id"
	if s.provider == "paypal" {
		param = "paypal_order_id"
	}
	q := url.Values{param: {s.tc.GetPaymentToken()}}
	return s.tc.GET("/api/payments/verify?" + q.Encode())
}

func (s *paymentSteps) verifyWithoutToken(_ context.Context) error {
	q := url.Values{"application_id": {s.tc.GetApplicationID()}}
	return s.tc.GET("/api/payments/verify?" + q.Encode())
}
