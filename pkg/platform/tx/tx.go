// Package tx carries a caller-owned SQL transaction through a context so a
// store can join it instead of opening its own.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx returns ctx carrying sqlTx. A nil sqlTx leaves ctx unchanged.
func WithTx(ctx context.Context, sqlTx *sql.Tx) context.Context {
	if sqlTx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, sqlTx)
}

// From returns the transaction stored by WithTx.
func From(ctx context.Context) (*sql.Tx, bool) {
	sqlTx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return sqlTx, ok && sqlTx != nil
}
