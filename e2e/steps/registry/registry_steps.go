package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Principal(name string) string
	ActAs(name string)
	POST(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	StatusCode() int
	GetResponseField(field string) (any, error)
	Save(key, value string)
	Saved(key string) (string, error)
}

var policyCodes = map[string]int{
	"IssuerOnly": 0,
	"OwnerOnly":  1,
	"Both":       2,
	"Neither":    3,
}

// RegisterSteps registers offer, record and ownership steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^"([^"]*)" offers "([^"]*)" a credential "([^"]*)" with policy "([^"]*)"$`, steps.offerCredential)
	ctx.Step(`^I offer "([^"]*)" a credential with policy code (-?\d+)$`, steps.offerWithCode)
	ctx.Step(`^"([^"]*)" accepts offer (\d+)$`, steps.acceptOffer)
	ctx.Step(`^"([^"]*)" rejects offer (\d+)$`, steps.rejectOffer)
	ctx.Step(`^I save the record id$`, steps.saveRecordID)
	ctx.Step(`^"([^"]*)" burns the saved record$`, steps.burnSaved)
	ctx.Step(`^"([^"]*)" transfers the saved record to "([^"]*)"$`, steps.transferSaved)
	ctx.Step(`^I look up the holder of the saved record$`, steps.lookupHolder)
	ctx.Step(`^I count my offers$`, steps.countOffers)
	ctx.Step(`^I list the records of "([^"]*)"$`, steps.listRecordsOf)

	ctx.Step(`^the holder should be "([^"]*)"$`, steps.holderShouldBe)
	ctx.Step(`^the balance should be (\d+)$`, steps.balanceShouldBe)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) offerCredential(ctx context.Context, issuer, recipient, ref, policy string) error {
	code, ok := policyCodes[policy]
	if !ok {
		return fmt.Errorf("unknown policy %q", policy)
	}
	s.tc.ActAs(issuer)
	if err := s.post("/v1/offers", recipient, ref, code); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("offer failed with status %d", s.tc.StatusCode())
	}
	return nil
}

func (s *registrySteps) offerWithCode(ctx context.Context, recipient string, code int) error {
	return s.post("/v1/offers", recipient, "ipfs://e2e", code)
}

func (s *registrySteps) post(path, recipient, ref string, code int) error {
	return s.tc.POST(path, map[string]any{
		"recipient":    s.tc.Principal(recipient),
		"metadata_ref": ref,
		"policy":       code,
	})
}

func (s *registrySteps) acceptOffer(ctx context.Context, name string, index int) error {
	s.tc.ActAs(name)
	return s.tc.POST(fmt.Sprintf("/v1/offers/%d/accept", index), nil)
}

func (s *registrySteps) rejectOffer(ctx context.Context, name string, index int) error {
	s.tc.ActAs(name)
	return s.tc.POST(fmt.Sprintf("/v1/offers/%d/reject", index), nil)
}

func (s *registrySteps) saveRecordID(ctx context.Context) error {
	v, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save("record_id", fmt.Sprint(v))
	return nil
}

func (s *registrySteps) recordPath(suffix string) (string, error) {
	rid, err := s.tc.Saved("record_id")
	if err != nil {
		return "", err
	}
	return "/v1/records/" + rid + suffix, nil
}

func (s *registrySteps) burnSaved(ctx context.Context, name string) error {
	path, err := s.recordPath("")
	if err != nil {
		return err
	}
	s.tc.ActAs(name)
	return s.tc.DELETE(path)
}

func (s *registrySteps) transferSaved(ctx context.Context, name, to string) error {
	path, err := s.recordPath("/transfer")
	if err != nil {
		return err
	}
	s.tc.ActAs(name)
	return s.tc.POST(path, map[string]string{"to": s.tc.Principal(to)})
}

func (s *registrySteps) lookupHolder(ctx context.Context) error {
	path, err := s.recordPath("/holder")
	if err != nil {
		return err
	}
	return s.tc.GET(path)
}

func (s *registrySteps) countOffers(ctx context.Context) error {
	return s.tc.GET("/v1/offers/count")
}

func (s *registrySteps) listRecordsOf(ctx context.Context, name string) error {
	return s.tc.GET("/v1/principals/" + s.tc.Principal(name) + "/records")
}

func (s *registrySteps) holderShouldBe(ctx context.Context, name string) error {
	got, err := s.tc.GetResponseField("holder")
	if err != nil {
		return err
	}
	if got != s.tc.Principal(name) {
		return fmt.Errorf("expected holder %s (%s), got %v", name, s.tc.Principal(name), got)
	}
	return nil
}

func (s *registrySteps) balanceShouldBe(ctx context.Context, want int) error {
	got, err := s.tc.GetResponseField("balance")
	if err != nil {
		return err
	}
	if n, ok := got.(float64); !ok || int(n) != want {
		return fmt.Errorf("expected balance %d, got %v", want, got)
	}
	return nil
}
