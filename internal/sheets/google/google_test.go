package google

import (
	"context"
	"os"
	"testing"

	"penny/internal/core"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := newSheetsService(context.Background())
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestNewSheetsService_UnreadableFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+string(os.PathSeparator)+"missing.json")

	if _, err := newSheetsService(context.Background()); err == nil {
		t.Fatal("expected error for unreadable credentials file")
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Expenses"}

	if _, err := c.AppendExpense(context.Background(), core.Expense{ID: 1}); err == nil {
		t.Error("expected error from AppendExpense without service")
	}
	if err := c.DeleteExpense(context.Background(), 1); err == nil {
		t.Error("expected error from DeleteExpense without service")
	}
	if _, err := c.AppendExpense(context.Background(), core.Expense{}); err == nil {
		t.Error("expected error for zero id")
	}
}

func TestExpenseRow(t *testing.T) {
	e := core.Expense{
		ID:          42,
		Date:        core.NewDate(2024, 3, 5),
		Amount:      core.Money{Cents: 7500000},
		VendorName:  "Amazon",
		Description: "Laptop",
		Category:    core.Shopping,
		IsAnomaly:   true,
	}
	row := expenseRow(e)
	want := []any{"42", "2024-03-05", "75000.00", "Amazon", "Shopping", "Laptop", "TRUE"}
	if len(row) != len(Header) {
		t.Fatalf("row has %d cells, header has %d", len(row), len(Header))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d: expected %v, got %v", i, want[i], row[i])
		}
	}
}

func TestFindRow(t *testing.T) {
	values := [][]any{
		{"ID"},
		{"7"},
		{},
		{" 12 "},
		{float64(9)},
	}

	tests := []struct {
		id    int64
		row   int
		found bool
	}{
		{7, 2, true},
		{12, 4, true},
		{9, 5, true},
		{8, 0, false},
	}
	for _, tt := range tests {
		row, found := findRow(values, tt.id)
		if row != tt.row || found != tt.found {
			t.Errorf("findRow(%d) = (%d, %v), want (%d, %v)", tt.id, row, found, tt.row, tt.found)
		}
	}
}
