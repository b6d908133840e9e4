package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom_Empty(t *testing.T) {
	got, ok := From(context.Background())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestWithTx_NilKeepsContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))

	_, ok := From(WithTx(ctx, nil))
	assert.False(t, ok)
}

func TestWithTx_RoundTrip(t *testing.T) {
	sqlTx := &sql.Tx{}
	got, ok := From(WithTx(context.Background(), sqlTx))
	assert.True(t, ok)
	assert.Same(t, sqlTx, got)
}
