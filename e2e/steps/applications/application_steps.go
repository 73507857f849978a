package applications

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetApplicationID() string
	SetApplicationID(id string)
}

// RegisterSteps registers intake step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &applicationSteps{tc: tc}

	ctx.Step(`^I submit an application with delivery method "([^"]*)"$`, steps.submitApplication)
	ctx.Step(`^I submit an application without "([^"]*)"$`, steps.submitWithout)
	ctx.Step(`^I save the application id$`, steps.saveApplicationID)
	ctx.Step(`^I fetch the saved application$`, steps.fetchApplication)
	ctx.Step(`^I fetch application "([^"]*)"$`, steps.fetchApplicationByID)
}

type applicationSteps struct {
	tc TestContext
}

func applicant(deliveryMethod string) map[string]any {
	return map[string]any{
		"firstName":      "Erika",
		"lastName":       "Mustermann",
		"birthDate":      "1984-08-12",
		"birthPlace":     "Berlin",
		"nationality":    "deutsch",
		"gender":         "weiblich",
		"street":         "Heidestraße",
		"houseNumber":    "17",
		"postalCode":     "51147",
		"city":           "Köln",
		"email":          "erika@example.org",
		"deliveryMethod": deliveryMethod,
	}
}

func (s *applicationSteps) submitApplication(_ context.Context, deliveryMethod string) error {
	return s.tc.POST("/api/applications", applicant(deliveryMethod))
}

func (s *applicationSteps) submitWithout(_ context.Context, field string) error {
	body := applicant("email")
	delete(body, field)
	return s.tc.POST("/api/applications", body)
}

func (s *applicationSteps) saveApplicationID(_ context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	idStr, ok := id.(string)
	if !ok || idStr == "" {
		return fmt.Errorf("unexpected application id %v", id)
	}
	s.tc.SetApplicationID(idStr)
	return nil
}

func (s *applicationSteps) fetchApplication(_ context.Context) error {
	return s.tc.GET("/api/applications/" + s.tc.GetApplicationID())
}

func (s *applicationSteps) fetchApplicationByID(_ context.Context, id string) error {
	return s.tc.GET("/api/applications/" + id)
}
