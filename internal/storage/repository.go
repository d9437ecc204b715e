package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"penny/internal/anomaly"
	"penny/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

// dsn enables WAL and a busy timeout so the server and the CLI can share
// one database file. Transactions start IMMEDIATE so a read-then-write unit
// holds the write lock from its first read.
func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append inserts the expense in a single statement, so a row is either
// stored with its category and anomaly flag or not at all.
func (r *SQLiteRepository) Append(ctx context.Context, e core.Expense) (core.Expense, error) {
	saved, err := r.create(ctx, r.queries, e)
	if err != nil {
		return core.Expense{}, err
	}
	logSaved(ctx, saved)
	return saved, nil
}

// AppendChecked runs the history read and the insert in one IMMEDIATE
// transaction, so no other connection can commit between them.
func (r *SQLiteRepository) AppendChecked(ctx context.Context, e core.Expense, check func(anomaly.History) bool) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	h, err := history(ctx, q, e.Category)
	if err != nil {
		return core.Expense{}, err
	}
	e.IsAnomaly = check(h)

	saved, err := r.create(ctx, q, e)
	if err != nil {
		return core.Expense{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit expense: %w", err)
	}
	logSaved(ctx, saved)
	return saved, nil
}

func (r *SQLiteRepository) create(ctx context.Context, q *Queries, e core.Expense) (core.Expense, error) {
	var anomalyFlag int64
	if e.IsAnomaly {
		anomalyFlag = 1
	}
	row, err := q.CreateExpense(ctx, CreateExpenseParams{
		Date:        e.Date.String(),
		AmountCents: e.Amount.Cents,
		VendorName:  e.VendorName,
		Description: e.Description,
		Category:    string(e.Category),
		IsAnomaly:   anomalyFlag,
		CreatedAt:   r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return rowToExpense(row)
}

func logSaved(ctx context.Context, saved core.Expense) {
	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", saved.ID,
		"vendor", saved.VendorName,
		"amount_cents", saved.Amount.Cents,
		"category", saved.Category,
		"is_anomaly", saved.IsAnomaly)
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return rowToExpense(row)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := rowToExpense(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) History(ctx context.Context, category core.Category) (anomaly.History, error) {
	return history(ctx, r.queries, category)
}

func (r *SQLiteRepository) Version(ctx context.Context) (string, error) {
	v, err := r.queries.StoreVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("store version: %w", err)
	}
	return fmt.Sprintf("%d.%d", v.Seq, v.Count), nil
}

func history(ctx context.Context, q *Queries, category core.Category) (anomaly.History, error) {
	rows, err := q.ListAmounts(ctx)
	if err != nil {
		return anomaly.History{}, fmt.Errorf("list amounts: %w", err)
	}
	h := anomaly.History{All: make([]core.Money, 0, len(rows))}
	for _, row := range rows {
		m := core.Money{Cents: row.AmountCents}
		h.All = append(h.All, m)
		if core.Category(row.Category) == category {
			h.Category = append(h.Category, m)
		}
	}
	return h, nil
}

func rowToExpense(row ExpenseRow) (core.Expense, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: stored date %q: %w", row.ID, row.Date, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: stored created_at %q: %w", row.ID, row.CreatedAt, err)
	}
	return core.Expense{
		ID:          row.ID,
		Date:        date,
		Amount:      core.Money{Cents: row.AmountCents},
		VendorName:  row.VendorName,
		Description: row.Description,
		Category:    core.Category(row.Category),
		IsAnomaly:   row.IsAnomaly != 0,
		CreatedAt:   createdAt,
	}, nil
}
