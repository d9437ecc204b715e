package dashboard

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
)

func exp(id int64, date core.Date, cents int64, vendor string, cat core.Category, anomaly bool) core.Expense {
	return core.Expense{
		ID:         id,
		Date:       date,
		Amount:     core.Money{Cents: cents},
		VendorName: vendor,
		Category:   cat,
		IsAnomaly:  anomaly,
	}
}

func sample() []core.Expense {
	return []core.Expense{
		exp(1, core.NewDate(2024, 1, 10), 35000, "Swiggy", core.Food, false),
		exp(2, core.NewDate(2024, 1, 11), 250000, "Amazon", core.Shopping, false),
		exp(3, core.NewDate(2024, 1, 12), 18000, "Uber", core.Transport, false),
		exp(4, core.NewDate(2024, 1, 13), 99900, "Netflix", core.Entertainment, false),
		exp(5, core.NewDate(2024, 1, 14), 45000, "Airtel", core.Utilities, false),
		exp(6, core.NewDate(2024, 1, 15), 7500000, "Amazon", core.Shopping, true),
		exp(7, core.NewDate(2024, 2, 16), 120000, "Zomato", core.Food, false),
		exp(8, core.NewDate(2024, 2, 17), 30000, "Ola", core.Transport, false),
		exp(9, core.NewDate(2024, 2, 18), 59900, "Spotify", core.Entertainment, false),
		exp(10, core.NewDate(2024, 2, 19), 85000, "1mg", core.Health, true),
	}
}

func TestBuild_Empty(t *testing.T) {
	view := Build(nil)

	assert.Zero(t, view.TotalExpenses)
	assert.Zero(t, view.AnomalyCount)
	assert.NotNil(t, view.CategoryTotals)
	assert.NotNil(t, view.TopVendors)
	assert.NotNil(t, view.Anomalies)
	assert.NotNil(t, view.MonthlyByCategory)

	b, err := json.Marshal(view)
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalExpenses":0,"totalAmount":0.00,"monthlyByCategory":{},"categoryTotals":[],"topVendors":[],"anomalies":[],"anomalyCount":0}`, string(b))
}

func TestBuild_CategoryTotalsSumInvariants(t *testing.T) {
	expenses := sample()
	view := Build(expenses)

	var sumTotals, sumAmounts int64
	var sumCounts int
	for _, cs := range view.CategoryTotals {
		sumTotals += cs.Total.Cents
		sumCounts += cs.Count
		assert.Positive(t, cs.Count, "zero categories are omitted")
	}
	for _, e := range expenses {
		sumAmounts += e.Amount.Cents
	}
	assert.Equal(t, sumAmounts, sumTotals)
	assert.Equal(t, len(expenses), sumCounts)
	assert.Equal(t, sumAmounts, view.TotalAmount.Cents)
	assert.Equal(t, len(expenses), view.TotalExpenses)

	for _, cs := range view.CategoryTotals {
		assert.NotEqual(t, core.Finance, cs.Category)
		assert.NotEqual(t, core.Other, cs.Category)
	}
	assert.Equal(t, core.Shopping, view.CategoryTotals[0].Category)
	assert.Equal(t, int64(7750000), view.CategoryTotals[0].Total.Cents)
	assert.Equal(t, 2, view.CategoryTotals[0].Count)
}

func TestBuild_MonthlyByCategory(t *testing.T) {
	view := Build(sample())

	require.Len(t, view.MonthlyByCategory, 2)
	jan := view.MonthlyByCategory["2024-01"]
	feb := view.MonthlyByCategory["2024-02"]
	assert.Equal(t, int64(7750000), jan[core.Shopping].Cents)
	assert.Equal(t, int64(35000), jan[core.Food].Cents)
	assert.Equal(t, int64(120000), feb[core.Food].Cents)
	_, ok := feb[core.Shopping]
	assert.False(t, ok)
}

func TestBuild_TopVendors(t *testing.T) {
	view := Build(sample())

	require.Len(t, view.TopVendors, TopVendorLimit)
	assert.Equal(t, "Amazon", view.TopVendors[0].VendorName)
	assert.Equal(t, 2, view.TopVendors[0].Count)
	for i := 1; i < len(view.TopVendors); i++ {
		assert.Greater(t, view.TopVendors[i-1].Total.Cents, view.TopVendors[i].Total.Cents)
	}
}

func TestBuild_TopVendorsAlphabeticalTieBreak(t *testing.T) {
	expenses := []core.Expense{
		exp(1, core.NewDate(2024, 1, 1), 1000, "Zomato", core.Food, false),
		exp(2, core.NewDate(2024, 1, 2), 1000, "Amazon", core.Shopping, false),
		exp(3, core.NewDate(2024, 1, 3), 500, "Ola", core.Transport, false),
	}
	view := Build(expenses)

	require.Len(t, view.TopVendors, 3)
	assert.Equal(t, "Amazon", view.TopVendors[0].VendorName)
	assert.Equal(t, "Zomato", view.TopVendors[1].VendorName)
	assert.Equal(t, "Ola", view.TopVendors[2].VendorName)
}

func TestBuild_TopVendorsTruncatesToFive(t *testing.T) {
	var expenses []core.Expense
	for i := 1; i <= 12; i++ {
		expenses = append(expenses, exp(int64(i), core.NewDate(2024, 3, i), int64(i*100), fmt.Sprintf("vendor-%02d", i), core.Other, false))
	}
	view := Build(expenses)

	require.Len(t, view.TopVendors, 5)
	assert.Equal(t, "vendor-12", view.TopVendors[0].VendorName)
	assert.Equal(t, "vendor-08", view.TopVendors[4].VendorName)
}

func TestBuild_Anomalies(t *testing.T) {
	expenses := sample()
	view := Build(expenses)

	flagged := 0
	for _, e := range expenses {
		if e.IsAnomaly {
			flagged++
		}
	}
	assert.Equal(t, flagged, view.AnomalyCount)
	assert.Len(t, view.Anomalies, view.AnomalyCount)
	assert.Equal(t, int64(6), view.Anomalies[0].ID, "largest amount first")
	assert.Equal(t, int64(10), view.Anomalies[1].ID)
}

func TestBuild_CategoryTieBreakByName(t *testing.T) {
	expenses := []core.Expense{
		exp(1, core.NewDate(2024, 1, 1), 500, "Uber", core.Transport, false),
		exp(2, core.NewDate(2024, 1, 2), 500, "Swiggy", core.Food, false),
	}
	view := Build(expenses)

	require.Len(t, view.CategoryTotals, 2)
	assert.Equal(t, core.Food, view.CategoryTotals[0].Category)
	assert.Equal(t, core.Transport, view.CategoryTotals[1].Category)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	expenses := sample()
	before := make([]core.Expense, len(expenses))
	copy(before, expenses)

	Build(expenses)
	assert.Equal(t, before, expenses)
}
