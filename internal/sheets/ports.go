package sheets

import (
	"context"

	"penny/internal/core"
)

// Mirror keeps a spreadsheet copy of the expense ledger. The store stays
// authoritative; a mirror only ever follows it.
type Mirror interface {
	// AppendExpense writes e as one row keyed by its id. Writing the same
	// id twice overwrites the earlier row.
	AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	// DeleteExpense clears the row holding id. A missing row is not an error.
	DeleteExpense(ctx context.Context, id int64) error
}
