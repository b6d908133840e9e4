package testutil

import (
	"context"
	"net/http"

	id "soulcert/pkg/domain"
	"soulcert/pkg/requestcontext"
)

// WithPrincipal adds an authenticated caller to the request context.
// This simulates what the auth middleware does for bearer tokens.
func WithPrincipal(req *http.Request, principal id.PrincipalID) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), principal))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
