// Package tx carries an open *sql.Tx through a context so postgres stores can
// join a caller-managed transaction without changing their signatures. Stores
// pick the transaction when present and fall back to their pooled handle.
package tx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// With attaches a transaction to the context.
func With(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// From extracts the transaction from the context, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}
