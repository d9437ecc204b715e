package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"penny/internal/core"
	"penny/internal/storage"
	"penny/internal/storage/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return NewStore()
	})
}

func TestAppendRejectsNonPositiveAmount(t *testing.T) {
	s := NewStore()
	_, err := s.Append(context.Background(), core.Expense{Date: core.NewDate(2024, 1, 1), VendorName: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	list, _ := s.List(context.Background())
	assert.Empty(t, list)
}

func TestListReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, _ = s.Append(ctx, core.Expense{Date: core.NewDate(2024, 1, 1), Amount: core.Money{Cents: 1}, VendorName: "x"})

	list, _ := s.List(ctx)
	list[0].VendorName = "mutated"

	again, _ := s.List(ctx)
	assert.Equal(t, "x", again[0].VendorName)
}
