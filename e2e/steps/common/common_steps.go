package common

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	ActAs(name string)
	Anonymous()
	StatusCode() int
	Body() []byte
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers identity and generic assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am "([^"]*)"$`, steps.actAs)
	ctx.Step(`^I am not authenticated$`, steps.anonymous)

	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, steps.fieldShouldBeNumber)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) actAs(_ context.Context, name string) error {
	s.tc.ActAs(name)
	return nil
}

func (s *commonSteps) anonymous(context.Context) error {
	s.tc.Anonymous()
	return nil
}

func (s *commonSteps) statusShouldBe(_ context.Context, status int) error {
	if s.tc.StatusCode() != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, s.tc.StatusCode(), s.tc.Body())
	}
	return nil
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}

func (s *commonSteps) fieldShouldBe(_ context.Context, field, want string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %q, got %v", field, want, got)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeNumber(ctx context.Context, field string, want int) error {
	return s.fieldShouldBe(ctx, field, strconv.Itoa(want))
}
