// Package ingest turns a validated NewExpense into a stored Expense:
// categorize, check for an anomaly against prior history, append.
package ingest

import (
	"context"
	"fmt"

	"penny/internal/anomaly"
	"penny/internal/categorize"
	"penny/internal/core"
	"penny/internal/storage"
)

// Pipeline is safe for concurrent use. The store runs the history read and
// the append of one expense as a single unit, so no other ingestion, in this
// process or another, commits between them.
type Pipeline struct {
	categorizer *categorize.Categorizer
	detector    *anomaly.Detector
	store       storage.Store
}

func NewPipeline(c *categorize.Categorizer, d *anomaly.Detector, s storage.Store) *Pipeline {
	return &Pipeline{categorizer: c, detector: d, store: s}
}

// Ingest validates n and, if valid, stores it with its derived category and
// anomaly flag. Validation failures are returned as *core.ValidationError
// before any rule or store is consulted. The returned Decision explains the
// anomaly flag.
//
// Once n is valid the store work is not interruptible: cancelling ctx does
// not abort it, and callers observe cancellation between ingestions.
func (p *Pipeline) Ingest(ctx context.Context, n core.NewExpense) (core.Expense, anomaly.Decision, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return core.Expense{}, anomaly.Decision{}, err
	}

	e := core.Expense{
		Date:        n.Date,
		Amount:      n.Amount,
		VendorName:  n.VendorName,
		Description: n.Description,
		Category:    p.categorizer.Categorize(n.VendorName),
	}

	var decision anomaly.Decision
	saved, err := p.store.AppendChecked(context.WithoutCancel(ctx), e, func(h anomaly.History) bool {
		decision = p.detector.Evaluate(n.Amount, h)
		return decision.Anomalous
	})
	if err != nil {
		return core.Expense{}, anomaly.Decision{}, fmt.Errorf("append expense: %w", err)
	}
	return saved, decision, nil
}
