package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Executor is the subset of *sql.DB and *sql.Tx that stores query through.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ExecutorFrom returns the transaction carried by ctx, or db when there is none.
func ExecutorFrom(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Runner executes fn as one unit of work. Stores called with the ctx passed
// to fn join that unit.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type localKey struct{}

// LocalRunner serializes units of work with a mutex. It backs the in-memory
// stores, which have no rollback: a failing fn leaves earlier writes applied.
type LocalRunner struct {
	mu sync.Mutex
}

func (r *LocalRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(localKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, localKey{}, true))
}
