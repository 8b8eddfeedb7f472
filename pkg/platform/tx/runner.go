package tx

import (
	"context"
	"database/sql"
	"fmt"
)

// Runner executes a function atomically. Postgres-backed wiring runs it in a
// database transaction placed on the context; in-memory wiring just calls it.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs the function inside a *sql.Tx attached to the context, so
// every store call inside fn joins the same transaction.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(With(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PassthroughRunner calls the function directly. In-memory stores take their
// own locks per call, so there is no transaction to manage.
type PassthroughRunner struct{}

func (PassthroughRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
