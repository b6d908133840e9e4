package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"soulcert/internal/credential/events"
	"soulcert/internal/credential/models"
	"soulcert/internal/credential/service"
	jwttoken "soulcert/internal/jwt_token"
	"soulcert/internal/platform/metrics"
	id "soulcert/pkg/domain"
	"soulcert/pkg/platform/audit/publisher"
	auditmemory "soulcert/pkg/platform/audit/store/memory"
	"soulcert/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	jwt       *jwttoken.JWTService
	published *events.Memory
	issuer    id.PrincipalID
	recipient id.PrincipalID
	stranger  id.PrincipalID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func (s *HandlerSuite) SetupTest() {
	s.published = events.NewMemory()
	svc := service.New(nil,
		service.WithLogger(discardLogger),
		service.WithPublisher(s.published),
		service.WithAuditPublisher(publisher.NewPublisher(auditmemory.NewInMemoryStore())),
	)
	s.jwt = jwttoken.NewJWTService("handler-test-key", "soulcert", jwttoken.DefaultAudience)
	s.router = s.newRouter(svc)
	s.issuer = id.NewPrincipalID()
	s.recipient = id.NewPrincipalID()
	s.stranger = id.NewPrincipalID()
}

func (s *HandlerSuite) newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, discardLogger, metrics.New(prometheus.NewRegistry()), jwttoken.NewJWTServiceAdapter(s.jwt)).Register(r)
	return r
}

func (s *HandlerSuite) do(as id.PrincipalID, method, path string, body any) *httptest.ResponseRecorder {
	var token string
	if !as.IsNil() {
		var err error
		token, err = s.jwt.GenerateAccessToken(as, time.Hour)
		s.Require().NoError(err)
	}
	return testutil.DoRequest(s.router, testutil.NewBearerRequest(s.T(), method, path, token, body))
}

func (s *HandlerSuite) createOffer(policy int) int {
	rr := s.do(s.issuer, http.MethodPost, "/v1/offers", map[string]any{
		"recipient":    s.recipient.String(),
		"metadata_ref": "ipfs://cert",
		"policy":       policy,
	})
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	body := testutil.UnmarshalResponse[map[string]int](s.T(), rr)
	return (*body)["index"]
}

func (s *HandlerSuite) accept(index int) RecordResponse {
	rr := s.do(s.recipient, http.MethodPost, fmt.Sprintf("/v1/offers/%d/accept", index), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[RecordResponse](s.T(), rr)
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	rr := s.do(id.PrincipalID{}, http.MethodGet, "/v1/offers/count", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestOfferLifecycle() {
	s.Equal(0, s.createOffer(1))
	s.Equal(1, s.createOffer(3))

	rr := s.do(s.recipient, http.MethodGet, "/v1/offers/count", nil)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(2))

	rr = s.do(s.issuer, http.MethodGet, "/v1/offers/count", nil)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(0))

	rr = s.do(s.recipient, http.MethodGet, "/v1/offers/1", nil)
	testutil.AssertStatusOK(s.T(), rr)
	offer := testutil.UnmarshalResponse[OfferResponse](s.T(), rr)
	s.Equal(s.issuer, offer.Issuer)
	s.Equal("ipfs://cert", offer.MetadataRef)
	s.Equal(models.BurnNeither, offer.Policy)
	s.Equal(3, offer.PolicyCode)

	rr = s.do(s.recipient, http.MethodGet, "/v1/offers", nil)
	list := testutil.UnmarshalResponse[OfferListResponse](s.T(), rr)
	s.Equal(2, list.Count)

	rr = s.do(s.recipient, http.MethodPost, "/v1/offers/0/reject", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	record := s.accept(0)
	s.Equal(id.RecordID(0), record.ID)
	s.Equal(s.recipient, record.Holder)
	s.Len(s.published.Events(), 1)
}

func (s *HandlerSuite) TestCreateOfferValidation() {
	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"undefined policy", map[string]any{"recipient": s.recipient.String(), "metadata_ref": "x", "policy": 4}, http.StatusBadRequest, "invalid_policy_code"},
		{"missing policy", map[string]any{"recipient": s.recipient.String(), "metadata_ref": "x"}, http.StatusBadRequest, "bad_request"},
		{"bad recipient", map[string]any{"recipient": "nobody", "metadata_ref": "x", "policy": 0}, http.StatusBadRequest, "invalid_input"},
		{"unknown field", map[string]any{"recipient": s.recipient.String(), "policy": 0, "owner": "me"}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rr := s.do(s.issuer, http.MethodPost, "/v1/offers", tt.body)
			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestIndexErrors() {
	rr := s.do(s.recipient, http.MethodPost, "/v1/offers/0/accept", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "index_out_of_range")

	rr = s.do(s.recipient, http.MethodGet, "/v1/offers/-1", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = s.do(s.recipient, http.MethodPost, "/v1/offers/abc/reject", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestBurnAndAccessors() {
	s.createOffer(1)
	record := s.accept(0)
	path := fmt.Sprintf("/v1/records/%d", record.ID)

	rr := s.do(s.stranger, http.MethodGet, path+"/holder", nil)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "holder", s.recipient.String())

	rr = s.do(s.stranger, http.MethodGet, path+"/issuer", nil)
	testutil.AssertJSONContains(s.T(), rr, "issuer", s.issuer.String())

	rr = s.do(s.stranger, http.MethodGet, path+"/metadata", nil)
	testutil.AssertJSONContains(s.T(), rr, "metadata_ref", "ipfs://cert")

	rr = s.do(s.stranger, http.MethodGet, path+"/policy", nil)
	policy := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("owner_only", (*policy)["policy"])
	s.Equal(float64(1), (*policy)["policy_code"])

	rr = s.do(s.issuer, http.MethodDelete, path, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "burn_not_authorized")

	rr = s.do(s.recipient, http.MethodDelete, path, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = s.do(s.recipient, http.MethodGet, path+"/holder", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_record")

	rr = s.do(s.recipient, http.MethodGet, "/v1/records/not-a-number", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestTransferIsRejected() {
	s.createOffer(2)
	record := s.accept(0)

	rr := s.do(s.recipient, http.MethodPost, fmt.Sprintf("/v1/records/%d/transfer", record.ID), map[string]string{"to": s.stranger.String()})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "transfer_not_permitted")

	rr = s.do(s.recipient, http.MethodPost, "/v1/records/77/transfer", map[string]string{"to": s.stranger.String()})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_record")

	rr = s.do(s.stranger, http.MethodGet, fmt.Sprintf("/v1/records/%d", record.ID), nil)
	got := testutil.UnmarshalResponse[RecordResponse](s.T(), rr)
	s.Equal(s.recipient, got.Holder)
}

func (s *HandlerSuite) TestHoldings() {
	s.createOffer(1)
	s.createOffer(1)
	first := s.accept(0)
	second := s.accept(0)

	rr := s.do(s.stranger, http.MethodGet, "/v1/principals/"+s.recipient.String()+"/records", nil)
	testutil.AssertStatusOK(s.T(), rr)
	holdings := testutil.UnmarshalResponse[HoldingsResponse](s.T(), rr)
	s.Equal(2, holdings.Balance)
	s.Require().Len(holdings.Records, 2)
	s.Equal(first.ID, holdings.Records[0].ID)
	s.Equal(second.ID, holdings.Records[1].ID)

	rr = s.do(s.stranger, http.MethodGet, "/v1/principals/"+s.recipient.String()+"/records/1", nil)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "id", float64(second.ID))

	rr = s.do(s.stranger, http.MethodGet, "/v1/principals/"+s.recipient.String()+"/records/2", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "index_out_of_range")

	rr = s.do(s.stranger, http.MethodGet, "/v1/records", nil)
	testutil.AssertJSONContains(s.T(), rr, "total", float64(2))
}

func (s *HandlerSuite) TestAuditTrail() {
	s.createOffer(0)

	rr := s.do(s.issuer, http.MethodGet, "/v1/audit", nil)
	testutil.AssertStatusOK(s.T(), rr)
	body := testutil.UnmarshalResponse[map[string][]AuditEventResponse](s.T(), rr)
	trail := (*body)["events"]
	s.Require().Len(trail, 1)
	s.Equal("offer_created", trail[0].Action)
	s.Equal(s.recipient.String(), trail[0].Counterparty)
}

func (s *HandlerSuite) TestMintUsesRequestTime() {
	s.createOffer(1)
	before := time.Now().Add(-time.Second)
	record := s.accept(0)
	s.False(record.MintedAt.Before(before))
	s.False(record.MintedAt.After(time.Now()))

	rr := s.do(s.recipient, http.MethodGet, "/v1/audit", nil)
	testutil.AssertStatusOK(s.T(), rr)
	body := testutil.UnmarshalResponse[map[string][]AuditEventResponse](s.T(), rr)
	trail := (*body)["events"]
	s.Require().NotEmpty(trail)
	issued := trail[len(trail)-1]
	s.Equal("credential_issued", issued.Action)
	s.True(record.MintedAt.Equal(issued.Timestamp), "mint and audit share the request time")
}

type failingRegistry struct {
	Service
}

func (failingRegistry) TotalRecords(context.Context) (int, error) {
	return 0, errors.New("pq: connection reset by peer")
}

func (s *HandlerSuite) TestInternalErrorsDoNotLeak() {
	s.router = s.newRouter(failingRegistry{})

	rr := s.do(s.stranger, http.MethodGet, "/v1/records", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	s.NotContains(rr.Body.String(), "connection reset")
}
