// Package memory is an in-process expense store used by tests and by the
// memory data backend.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"penny/internal/anomaly"
	"penny/internal/core"
	"penny/internal/storage"
)

type Store struct {
	mu     sync.RWMutex
	rows    []core.Expense
	nextID  int64
	version int64
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{nextID: 1, now: time.Now}
}

func (s *Store) Append(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Amount.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(e), nil
}

// AppendChecked holds the write lock across the history read and the append.
func (s *Store) AppendChecked(_ context.Context, e core.Expense, check func(anomaly.History) bool) (core.Expense, error) {
	if err := e.Amount.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.IsAnomaly = check(s.historyLocked(e.Category))
	return s.appendLocked(e), nil
}

func (s *Store) appendLocked(e core.Expense) core.Expense {
	e.ID = s.nextID
	e.CreatedAt = s.now().UTC()
	s.nextID++
	s.version++
	s.rows = append(s.rows, e)
	return e
}

func (s *Store) Get(_ context.Context, id int64) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.rows {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, storage.ErrNotFound
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.rows {
		if e.ID == id {
			s.rows = slices.Delete(s.rows, i, i+1)
			s.version++
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	out := slices.Clone(s.rows)
	s.mu.RUnlock()
	if out == nil {
		out = []core.Expense{}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) History(_ context.Context, category core.Category) (anomaly.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historyLocked(category), nil
}

func (s *Store) historyLocked(category core.Category) anomaly.History {
	h := anomaly.History{All: make([]core.Money, 0, len(s.rows))}
	for _, e := range s.rows {
		h.All = append(h.All, e.Amount)
		if e.Category == category {
			h.Category = append(h.Category, e.Amount)
		}
	}
	return h
}

func (s *Store) Version(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strconv.FormatInt(s.version, 10), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
