// Package e2e drives a running soulcert server through the Gherkin features
// under features/. Set E2E_BASE_URL to the server address and JWT_SIGNING_KEY
// to the key the server was started with.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"soulcert/e2e/steps/common"
	"soulcert/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.Reset()
		return ctx, nil
	})

	common.RegisterSteps(ctx, tc)
	registry.RegisterSteps(ctx, tc)
}

// TestContext holds per-scenario state: named principals, the last response
// and values saved between steps.
type TestContext struct {
	baseURL    string
	signingKey []byte
	issuer     string
	client     *http.Client

	principals map[string]string
	acting     string
	saved      map[string]string

	status int
	body   []byte
}

func NewTestContext(baseURL, signingKey, issuer string) *TestContext {
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
		issuer:     issuer,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (tc *TestContext) Reset() {
	tc.principals = map[string]string{}
	tc.saved = map[string]string{}
	tc.acting = ""
	tc.status = 0
	tc.body = nil
}

// Principal returns the UUID bound to name, creating one on first use.
func (tc *TestContext) Principal(name string) string {
	if p, ok := tc.principals[name]; ok {
		return p
	}
	p := uuid.NewString()
	tc.principals[name] = p
	return p
}

func (tc *TestContext) ActAs(name string) {
	tc.acting = name
}

func (tc *TestContext) Anonymous() {
	tc.acting = ""
}

func (tc *TestContext) Save(key, value string) {
	tc.saved[key] = value
}

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) StatusCode() int {
	return tc.status
}

func (tc *TestContext) Body() []byte {
	return tc.body
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.body, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.body)
	}
	return v, nil
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.acting != "" {
		token, err := tc.token(tc.Principal(tc.acting))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) token(principal string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    tc.issuer,
		Audience:  jwt.ClaimStrings{"soulcert-api"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tc.signingKey)
}
