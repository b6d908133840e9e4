// Package requesttime pins one "now" per HTTP request. Mint timestamps and
// audit events written while serving the request all read it through
// requestcontext.Now.
package requesttime

import (
	"net/http"
	"time"

	"soulcert/pkg/requestcontext"
)

// Middleware stores the arrival time of the request in its context.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an explicit time source.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
