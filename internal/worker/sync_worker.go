package worker

import (
	"context"
	"fmt"
	"time"

	"penny/internal/amqp"
	applog "penny/internal/log"
	"penny/internal/sheets"
)

// SyncWorker mirrors expense events to a spreadsheet.
type SyncWorker struct {
	mirror sheets.Mirror
	logger *applog.Logger
}

func NewSyncWorker(mirror sheets.Mirror, logger *applog.Logger) *SyncWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SyncWorker{
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent applies one event to the mirror. A returned error makes the
// consumer requeue the message; both operations are idempotent per id.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	start := time.Now()
	logger := w.logger.With(
		applog.FieldEventID, ev.EventID,
		applog.FieldEventType, ev.Type,
		applog.FieldExpenseID, ev.ExpenseID)

	switch ev.Type {
	case amqp.EventExpenseCreated:
		if ev.Expense == nil {
			return fmt.Errorf("%w: created event without expense", amqp.ErrInvalidEvent)
		}
		ref, err := w.mirror.AppendExpense(ctx, *ev.Expense)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mirror expense",
				applog.FieldOperation, applog.OpMirror,
				applog.FieldError, err)
			return fmt.Errorf("append to sheets: %w", err)
		}
		logger.InfoContext(ctx, "Mirrored expense",
			"sheets_ref", ref,
			applog.FieldDuration, time.Since(start).Milliseconds())

	case amqp.EventExpenseDeleted:
		if err := w.mirror.DeleteExpense(ctx, ev.ExpenseID); err != nil {
			logger.ErrorContext(ctx, "Failed to remove mirrored expense",
				applog.FieldOperation, applog.OpDelete,
				applog.FieldError, err)
			return fmt.Errorf("delete from sheets: %w", err)
		}
		logger.InfoContext(ctx, "Removed mirrored expense",
			applog.FieldDuration, time.Since(start).Milliseconds())

	default:
		return fmt.Errorf("%w: unknown type %q", amqp.ErrInvalidEvent, ev.Type)
	}
	return nil
}
