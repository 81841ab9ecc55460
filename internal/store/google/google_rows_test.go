package google

import (
	"testing"
	"time"

	"famiglia/internal/core"
)

func TestExpenseRowRoundTrip(t *testing.T) {
	e := core.Expense{
		ID:          "e1",
		UserID:      "u1",
		Amount:      core.Money{Cents: 2550},
		Category:    core.CategoryFood,
		Description: "groceries",
		Date:        time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
	}

	got, ok, err := decodeExpenseRow(encodeExpenseRow(e))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if got.ID != e.ID || got.UserID != e.UserID || got.Amount.Cents != 2550 {
		t.Fatalf("round trip = %+v", got)
	}
	if !got.Date.Equal(e.Date) || !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("timestamps = %+v", got)
	}
}

func TestDecodeExpenseRowBlank(t *testing.T) {
	if _, ok, err := decodeExpenseRow(nil); ok || err != nil {
		t.Fatalf("blank row: ok=%v err=%v", ok, err)
	}
	if _, ok, err := decodeExpenseRow([]any{"", "", ""}); ok || err != nil {
		t.Fatalf("cleared row: ok=%v err=%v", ok, err)
	}
}

func TestDecodeExpenseRowMalformed(t *testing.T) {
	row := encodeExpenseRow(core.Expense{
		ID: "e1", UserID: "u1", Amount: core.Money{Cents: 100},
		Category: core.CategoryFood,
		Date:     time.Now(), CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	row[2] = "not-a-number"
	if _, _, err := decodeExpenseRow(row); err == nil {
		t.Fatal("expected parse error for bad amount")
	}
}

func TestBudgetRowRoundTrip(t *testing.T) {
	b := core.Budget{
		ID:     "b1",
		UserID: "u1",
		Amount: core.Money{Cents: 50000},
		Period: core.Monthly,
		CategoryLimits: map[core.Category]core.Money{
			core.CategoryFood: {Cents: 20000},
		},
	}

	row, err := encodeBudgetRow(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok, err := decodeBudgetRow(row)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if got.ID != b.ID || got.Period != core.Monthly {
		t.Fatalf("round trip = %+v", got)
	}
	if got.CategoryLimits[core.CategoryFood].Cents != 20000 {
		t.Fatalf("limits = %+v", got.CategoryLimits)
	}
}

func TestBudgetRowNoLimits(t *testing.T) {
	row, err := encodeBudgetRow(core.Budget{
		ID: "b1", UserID: "u1", Amount: core.Money{Cents: 100}, Period: core.Weekly,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok, err := decodeBudgetRow(row)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if got.CategoryLimits != nil {
		t.Fatalf("expected nil limits, got %+v", got.CategoryLimits)
	}
}
