package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ExpenseRow mirrors one row of the expenses table.
type ExpenseRow struct {
	ID          int64
	Date        string
	AmountCents int64
	VendorName  string
	Description string
	Category    string
	IsAnomaly   int64
	CreatedAt   string
}

type CreateExpenseParams struct {
	Date        string
	AmountCents int64
	VendorName  string
	Description string
	Category    string
	IsAnomaly   int64
	CreatedAt   string
}

const createExpense = `-- name: CreateExpense :one
INSERT INTO expenses (date, amount_cents, vendor_name, description, category, is_anomaly, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id, date, amount_cents, vendor_name, description, category, is_anomaly, created_at
`

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (ExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.Date,
		arg.AmountCents,
		arg.VendorName,
		arg.Description,
		arg.Category,
		arg.IsAnomaly,
		arg.CreatedAt,
	)
	var i ExpenseRow
	err := row.Scan(
		&i.ID,
		&i.Date,
		&i.AmountCents,
		&i.VendorName,
		&i.Description,
		&i.Category,
		&i.IsAnomaly,
		&i.CreatedAt,
	)
	return i, err
}

const getExpense = `-- name: GetExpense :one
SELECT id, date, amount_cents, vendor_name, description, category, is_anomaly, created_at
FROM expenses
WHERE id = ?
`

func (q *Queries) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var i ExpenseRow
	err := row.Scan(
		&i.ID,
		&i.Date,
		&i.AmountCents,
		&i.VendorName,
		&i.Description,
		&i.Category,
		&i.IsAnomaly,
		&i.CreatedAt,
	)
	return i, err
}

const deleteExpense = `-- name: DeleteExpense :execrows
DELETE FROM expenses WHERE id = ?
`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listExpenses = `-- name: ListExpenses :many
SELECT id, date, amount_cents, vendor_name, description, category, is_anomaly, created_at
FROM expenses
ORDER BY date DESC, id DESC
`

func (q *Queries) ListExpenses(ctx context.Context) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		var i ExpenseRow
		if err := rows.Scan(
			&i.ID,
			&i.Date,
			&i.AmountCents,
			&i.VendorName,
			&i.Description,
			&i.Category,
			&i.IsAnomaly,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type StoreVersionRow struct {
	Seq   int64
	Count int64
}

// The AUTOINCREMENT sequence only grows on insert and the count only drops
// on delete, so the pair differs between any two states of the table.
const storeVersion = `-- name: StoreVersion :one
SELECT
    coalesce((SELECT seq FROM sqlite_sequence WHERE name = 'expenses'), 0),
    (SELECT count(*) FROM expenses)
`

func (q *Queries) StoreVersion(ctx context.Context) (StoreVersionRow, error) {
	row := q.db.QueryRowContext(ctx, storeVersion)
	var i StoreVersionRow
	err := row.Scan(&i.Seq, &i.Count)
	return i, err
}

type AmountRow struct {
	Category    string
	AmountCents int64
}

const listAmounts = `-- name: ListAmounts :many
SELECT category, amount_cents
FROM expenses
ORDER BY id
`

func (q *Queries) ListAmounts(ctx context.Context) ([]AmountRow, error) {
	rows, err := q.db.QueryContext(ctx, listAmounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AmountRow
	for rows.Next() {
		var i AmountRow
		if err := rows.Scan(&i.Category, &i.AmountCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
