package ledger

import (
	"testing"
	"time"

	"famiglia/internal/core"
)

func TestExportCSV(t *testing.T) {
	expenses := []core.Expense{
		{
			UserID:      "u1",
			Amount:      core.Money{Cents: 2550},
			Category:    core.CategoryFood,
			Description: "groceries",
			Date:        time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			UserID:      "u1",
			Amount:      core.Money{Cents: 900},
			Category:    core.CategoryTransportation,
			Description: "bus pass",
			Date:        time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	want := "Date,Category,Description,Amount\n" +
		"8/5/2026,Food,groceries,25.50\n" +
		"12/31/2026,Transportation,bus pass,9.00\n"
	if got := ExportCSV(expenses); got != want {
		t.Fatalf("csv mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestExportCSVEmpty(t *testing.T) {
	want := "Date,Category,Description,Amount\n"
	if got := ExportCSV(nil); got != want {
		t.Fatalf("empty export = %q, want header only", got)
	}
}
