package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := New(CodeUnknownRecord, "record 7 not found")
	require.ErrorIs(t, err, New(CodeUnknownRecord, "different message"))
	assert.NotErrorIs(t, err, New(CodeBurnNotAuthorized, "record 7 not found"))

	wrapped := fmt.Errorf("handler: %w", err)
	require.ErrorIs(t, wrapped, New(CodeUnknownRecord, ""))
}

func TestHasCode(t *testing.T) {
	cause := errors.New("connection reset")
	inner := Wrap(cause, CodeUnavailable, "ledger unavailable")
	outer := Wrap(inner, CodeInternal, "accept failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(cause, CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
	assert.ErrorIs(t, outer, cause)
	assert.Equal(t, "accept failed: ledger unavailable: connection reset", outer.Error())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeIndexOutOfRange, CodeOf(fmt.Errorf("x: %w", New(CodeIndexOutOfRange, "bad index"))))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidPolicyCode:    http.StatusBadRequest,
		CodeIndexOutOfRange:      http.StatusNotFound,
		CodeUnknownRecord:        http.StatusNotFound,
		CodeBurnNotAuthorized:    http.StatusForbidden,
		CodeTransferNotPermitted: http.StatusConflict,
		CodeUnauthorized:         http.StatusUnauthorized,
		CodeTimeout:              http.StatusGatewayTimeout,
		CodeInternal:             http.StatusInternalServerError,
		Code("something_else"):   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), string(code))
	}
}
