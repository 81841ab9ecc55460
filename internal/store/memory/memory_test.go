package memory

import (
	"context"
	"testing"
	"time"

	"famiglia/internal/core"
)

func newExpense(userID string, cents int64) core.Expense {
	return core.Expense{
		UserID:      userID,
		Amount:      core.Money{Cents: cents},
		Category:    core.CategoryFood,
		Description: "test",
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpenseRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.InsertExpense(ctx, newExpense("u1", 2550))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("store should assign id and timestamps: %+v", saved)
	}

	got, err := s.QueryExpenses(ctx, []string{"u1"}, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != saved.ID || got[0].Amount.Cents != 2550 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestQueryExpensesScoping(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2", "u3"} {
		if _, err := s.InsertExpense(ctx, newExpense(uid, 100)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.QueryExpenses(ctx, []string{"u1", "u3"}, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, e := range got {
		if e.UserID == "u2" {
			t.Fatalf("u2 must not be visible")
		}
	}
}

func TestUpdateExpense(t *testing.T) {
	s := New()
	ctx := context.Background()
	saved, _ := s.InsertExpense(ctx, newExpense("u1", 100))

	amount := core.Money{Cents: 999}
	if err := s.UpdateExpense(ctx, saved.ID, core.ExpensePatch{Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.QueryExpenses(ctx, []string{"u1"}, 0)
	if got[0].Amount.Cents != 999 {
		t.Fatalf("amount = %d", got[0].Amount.Cents)
	}
	if got[0].UpdatedAt.Before(saved.UpdatedAt) {
		t.Fatalf("UpdatedAt must be refreshed")
	}

	if err := s.UpdateExpense(ctx, "nope", core.ExpensePatch{}); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestDeleteExpenseIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	saved, _ := s.InsertExpense(ctx, newExpense("u1", 100))

	if err := s.DeleteExpense(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteExpense(ctx, saved.ID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	got, _ := s.QueryExpenses(ctx, []string{"u1"}, 0)
	if len(got) != 0 {
		t.Fatalf("expected empty, got %d", len(got))
	}
}

func TestBudgetUpsertPath(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := s.InsertBudget(ctx, core.Budget{
		UserID: "u1",
		Amount: core.Money{Cents: 10000},
		Period: core.Monthly,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	limits := map[core.Category]core.Money{core.CategoryFood: {Cents: 4000}}
	if err := s.UpdateBudget(ctx, b.ID, core.Money{Cents: 20000}, core.Weekly, limits); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.QueryBudgets(ctx, []string{"u1"})
	if len(got) != 1 {
		t.Fatalf("expected one budget, got %d", len(got))
	}
	if got[0].Amount.Cents != 20000 || got[0].Period != core.Weekly {
		t.Fatalf("unexpected budget: %+v", got[0])
	}
	if got[0].CategoryLimits[core.CategoryFood].Cents != 4000 {
		t.Fatalf("limits not applied: %+v", got[0].CategoryLimits)
	}
}
