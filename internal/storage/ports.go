package storage

import (
	"context"
	"errors"

	"penny/internal/anomaly"
	"penny/internal/core"
)

// ErrNotFound is returned when no expense has the requested id.
var ErrNotFound = errors.New("expense not found")

// Store is the durable expense ledger.
type Store interface {
	// Append persists e atomically and returns it with ID and CreatedAt set.
	Append(ctx context.Context, e core.Expense) (core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	// Delete removes the expense or returns ErrNotFound.
	Delete(ctx context.Context, id int64) error
	// List returns every expense, newest date first, then highest id first.
	List(ctx context.Context) ([]core.Expense, error)
	// History returns the committed amounts in category and across all
	// categories, in insertion order.
	History(ctx context.Context, category core.Category) (anomaly.History, error)
	// AppendChecked reads the history of e.Category, sets e.IsAnomaly from
	// check and appends e, all as one unit against every other writer of
	// the store, including other processes.
	AppendChecked(ctx context.Context, e core.Expense, check func(anomaly.History) bool) (core.Expense, error)
	// Version returns a token that changes whenever an expense is appended
	// or deleted by any writer.
	Version(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
}
