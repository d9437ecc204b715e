package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"penny/internal/core"
)

// EventType names what happened to an expense.
type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseDeleted EventType = "expense.deleted"
)

var ErrInvalidEvent = errors.New("invalid expense event")

// ExpenseEvent is published after an expense is stored or removed. Created
// events carry the full record so consumers never read back from the store.
type ExpenseEvent struct {
	EventID   string        `json:"event_id"`
	Type      EventType     `json:"type"`
	ExpenseID int64         `json:"expense_id"`
	Expense   *core.Expense `json:"expense,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewExpenseCreatedEvent creates an event carrying a copy of e
func NewExpenseCreatedEvent(e core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		EventID:   uuid.NewString(),
		Type:      EventExpenseCreated,
		ExpenseID: e.ID,
		Expense:   &e,
		Timestamp: time.Now().UTC(),
	}
}

// NewExpenseDeletedEvent creates an event for a removed expense id
func NewExpenseDeletedEvent(id int64) *ExpenseEvent {
	return &ExpenseEvent{
		EventID:   uuid.NewString(),
		Type:      EventExpenseDeleted,
		ExpenseID: id,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks that the event can be acted on.
func (m *ExpenseEvent) Validate() error {
	if _, err := uuid.Parse(m.EventID); err != nil {
		return fmt.Errorf("%w: event_id: %v", ErrInvalidEvent, err)
	}
	if m.ExpenseID <= 0 {
		return fmt.Errorf("%w: expense_id must be positive", ErrInvalidEvent)
	}
	switch m.Type {
	case EventExpenseCreated:
		if m.Expense == nil || m.Expense.ID != m.ExpenseID {
			return fmt.Errorf("%w: created event without matching expense", ErrInvalidEvent)
		}
	case EventExpenseDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, m.Type)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates an event
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
