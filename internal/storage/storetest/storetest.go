// Package storetest holds the behaviour every storage.Store must share.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/anomaly"
	"penny/internal/core"
	"penny/internal/storage"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("AppendAssignsIDAndCreatedAt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.Append(ctx, expense("2024-01-10", 35000, "Swiggy", core.Food, false))
		require.NoError(t, err)
		b, err := s.Append(ctx, expense("2024-01-11", 250000, "Amazon", core.Shopping, true))
		require.NoError(t, err)

		assert.Positive(t, a.ID)
		assert.Greater(t, b.ID, a.ID)
		assert.False(t, a.CreatedAt.IsZero())
		assert.True(t, b.IsAnomaly)

		got, err := s.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Amazon", got.VendorName)
		assert.Equal(t, core.Shopping, got.Category)
		assert.Equal(t, int64(250000), got.Amount.Cents)
		assert.Equal(t, "2024-01-11", got.Date.String())
		assert.True(t, got.IsAnomaly)
		assert.True(t, got.CreatedAt.Equal(b.CreatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), 404)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e, err := s.Append(ctx, expense("2024-01-10", 100, "Ola", core.Transport, false))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, e.ID))
		_, err = s.Get(ctx, e.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, e.ID), storage.ErrNotFound)
	})

	t.Run("ListOrdersByDateThenID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		first, _ := s.Append(ctx, expense("2024-01-10", 100, "A", core.Other, false))
		second, _ := s.Append(ctx, expense("2024-03-01", 100, "B", core.Other, false))
		third, _ := s.Append(ctx, expense("2024-01-10", 100, "C", core.Other, false))

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []int64{second.ID, third.ID, first.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("History", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		h, err := s.History(ctx, core.Food)
		require.NoError(t, err)
		assert.Empty(t, h.All)
		assert.Empty(t, h.Category)

		_, _ = s.Append(ctx, expense("2024-01-10", 100, "Swiggy", core.Food, false))
		_, _ = s.Append(ctx, expense("2024-01-11", 200, "Uber", core.Transport, false))
		_, _ = s.Append(ctx, expense("2024-01-12", 300, "Zomato", core.Food, false))

		h, err = s.History(ctx, core.Food)
		require.NoError(t, err)
		assert.Equal(t, []core.Money{{Cents: 100}, {Cents: 300}}, h.Category)
		assert.Equal(t, []core.Money{{Cents: 100}, {Cents: 200}, {Cents: 300}}, h.All)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Append(ctx, expense("2024-02-01", 100, "Metro", core.Transport, false))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 20)
		ids := map[int64]bool{}
		for _, e := range list {
			ids[e.ID] = true
		}
		assert.Len(t, ids, 20)
	})

	t.Run("AppendCheckedSeesOnlyPriorHistory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, _ = s.Append(ctx, expense("2024-01-10", 100, "Swiggy", core.Food, false))
		_, _ = s.Append(ctx, expense("2024-01-11", 200, "Uber", core.Transport, false))

		var seen anomaly.History
		saved, err := s.AppendChecked(ctx, expense("2024-01-12", 900, "Zomato", core.Food, false), func(h anomaly.History) bool {
			seen = h
			return true
		})
		require.NoError(t, err)
		assert.True(t, saved.IsAnomaly)
		assert.Equal(t, []core.Money{{Cents: 100}}, seen.Category)
		assert.Equal(t, []core.Money{{Cents: 100}, {Cents: 200}}, seen.All)

		got, err := s.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.True(t, got.IsAnomaly)
	})

	t.Run("ConcurrentAppendCheckedIsSerialized", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var (
			mu    sync.Mutex
			sizes []int
			wg    sync.WaitGroup
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.AppendChecked(ctx, expense("2024-02-01", 500, "Metro", core.Transport, false), func(h anomaly.History) bool {
					mu.Lock()
					sizes = append(sizes, len(h.All))
					mu.Unlock()
					return false
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sizes,
			"each check sees every earlier append and none of the later ones")
	})

	t.Run("VersionChangesOnWrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v0, err := s.Version(ctx)
		require.NoError(t, err)
		again, _ := s.Version(ctx)
		assert.Equal(t, v0, again)

		e, err := s.Append(ctx, expense("2024-01-10", 100, "Ola", core.Transport, false))
		require.NoError(t, err)
		v1, _ := s.Version(ctx)
		assert.NotEqual(t, v0, v1)

		_, err = s.AppendChecked(ctx, expense("2024-01-11", 100, "Ola", core.Transport, false), func(anomaly.History) bool { return false })
		require.NoError(t, err)
		v2, _ := s.Version(ctx)
		assert.NotEqual(t, v1, v2)

		require.NoError(t, s.Delete(ctx, e.ID))
		v3, _ := s.Version(ctx)
		assert.NotEqual(t, v2, v3)
		assert.NotEqual(t, v1, v3)

		assert.ErrorIs(t, s.Delete(ctx, e.ID), storage.ErrNotFound)
		v4, _ := s.Version(ctx)
		assert.Equal(t, v3, v4, "a failed delete is not a write")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}

func expense(date string, cents int64, vendor string, cat core.Category, flagged bool) core.Expense {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Expense{
		Date:       d,
		Amount:     core.Money{Cents: cents},
		VendorName: vendor,
		Category:   cat,
		IsAnomaly:  flagged,
	}
}
