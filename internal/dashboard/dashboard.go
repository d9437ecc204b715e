// Package dashboard folds a set of expenses into the dashboard read model.
package dashboard

import (
	"cmp"
	"slices"

	"penny/internal/core"
)

// TopVendorLimit caps the ranked vendor list.
const TopVendorLimit = 5

// Build computes the dashboard view from every expense. It never mutates
// the input and returns non-nil collections for an empty input.
func Build(expenses []core.Expense) core.DashboardView {
	view := core.DashboardView{
		MonthlyByCategory: make(map[string]map[core.Category]core.Money),
		CategoryTotals:    []core.CategoryStat{},
		TopVendors:        []core.VendorStat{},
		Anomalies:         []core.Expense{},
	}

	byCategory := make(map[core.Category]*core.CategoryStat)
	byVendor := make(map[string]*core.VendorStat)

	for _, e := range expenses {
		view.TotalExpenses++
		view.TotalAmount = view.TotalAmount.Add(e.Amount)

		month := e.Date.MonthKey()
		cells, ok := view.MonthlyByCategory[month]
		if !ok {
			cells = make(map[core.Category]core.Money)
			view.MonthlyByCategory[month] = cells
		}
		cells[e.Category] = cells[e.Category].Add(e.Amount)

		cs, ok := byCategory[e.Category]
		if !ok {
			cs = &core.CategoryStat{Category: e.Category}
			byCategory[e.Category] = cs
		}
		cs.Total = cs.Total.Add(e.Amount)
		cs.Count++

		vs, ok := byVendor[e.VendorName]
		if !ok {
			vs = &core.VendorStat{VendorName: e.VendorName}
			byVendor[e.VendorName] = vs
		}
		vs.Total = vs.Total.Add(e.Amount)
		vs.Count++

		if e.IsAnomaly {
			view.Anomalies = append(view.Anomalies, e)
		}
	}

	for _, cs := range byCategory {
		view.CategoryTotals = append(view.CategoryTotals, *cs)
	}
	slices.SortFunc(view.CategoryTotals, func(a, b core.CategoryStat) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})

	for _, vs := range byVendor {
		view.TopVendors = append(view.TopVendors, *vs)
	}
	slices.SortFunc(view.TopVendors, func(a, b core.VendorStat) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.VendorName, b.VendorName)
	})
	if len(view.TopVendors) > TopVendorLimit {
		view.TopVendors = view.TopVendors[:TopVendorLimit]
	}

	slices.SortFunc(view.Anomalies, func(a, b core.Expense) int {
		if c := cmp.Compare(b.Amount.Cents, a.Amount.Cents); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	view.AnomalyCount = len(view.Anomalies)

	return view
}
