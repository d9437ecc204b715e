package core

// CategoryStat is the total and record count of one category.
type CategoryStat struct {
	Category Category `json:"category"`
	Total    Money    `json:"total"`
	Count    int      `json:"count"`
}

// VendorStat is the total and record count of one vendor, keyed by the
// vendor name as it was recorded.
type VendorStat struct {
	VendorName string `json:"vendorName"`
	Total      Money  `json:"total"`
	Count      int    `json:"count"`
}

// DashboardView is the aggregate read model over every stored expense.
// Slices and maps are never nil so that they encode as [] and {} rather
// than null.
type DashboardView struct {
	TotalExpenses     int                           `json:"totalExpenses"`
	TotalAmount       Money                         `json:"totalAmount"`
	MonthlyByCategory map[string]map[Category]Money `json:"monthlyByCategory"`
	CategoryTotals    []CategoryStat                `json:"categoryTotals"`
	TopVendors        []VendorStat                  `json:"topVendors"`
	Anomalies         []Expense                     `json:"anomalies"`
	AnomalyCount      int                           `json:"anomalyCount"`
}
