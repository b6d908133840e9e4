package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "soulcert/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		describe string
	}{
		{
			name:   "internal error omits description",
			err:    dErrors.New(dErrors.CodeInternal, "db failed"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		{
			name:   "untyped error is internal",
			err:    errors.New("pq: connection reset by peer"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
		{
			name:     "burn by a stranger is forbidden",
			err:      dErrors.New(dErrors.CodeBurnNotAuthorized, "caller may not burn record 0"),
			status:   http.StatusForbidden,
			code:     "burn_not_authorized",
			describe: "caller may not burn record 0",
		},
		{
			name:     "transfer conflicts",
			err:      dErrors.New(dErrors.CodeTransferNotPermitted, "records are soulbound"),
			status:   http.StatusConflict,
			code:     "transfer_not_permitted",
			describe: "records are soulbound",
		},
		{
			name:     "wrapped cause keeps the outer message",
			err:      dErrors.Wrap(errors.New("no rows"), dErrors.CodeUnknownRecord, "no live record with this ID"),
			status:   http.StatusNotFound,
			code:     "unknown_record",
			describe: "no live record with this ID",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body["error"])
			if tt.describe == "" {
				assert.NotContains(t, body, "error_description")
				return
			}
			assert.Equal(t, tt.describe, body["error_description"])
		})
	}
}

func TestWriteJSON_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusNoContent, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
