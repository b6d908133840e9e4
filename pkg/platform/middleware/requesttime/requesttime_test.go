package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"soulcert/pkg/requestcontext"
)

func TestWithClock_PinsRequestTime(t *testing.T) {
	arrived := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return arrived
	}

	var first, second time.Time
	h := WithClock(clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/offers", nil))

	assert.Equal(t, arrived, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "clock is read once per request")
}

func TestMiddleware_UsesWallClock(t *testing.T) {
	before := time.Now()
	var got time.Time
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/records/0", nil))

	assert.False(t, got.Before(before))
	assert.False(t, got.After(time.Now()))
}
