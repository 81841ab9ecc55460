package core

import (
	"errors"
	"testing"
	"time"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		if !c.Valid() {
			t.Fatalf("category %q should be valid", c)
		}
	}
	if Category("Groceries").Valid() {
		t.Fatalf("unknown category should be invalid")
	}
	if len(Categories()) != 8 {
		t.Fatalf("expected 8 categories, got %d", len(Categories()))
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -500}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestExpenseValidate(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	good := Expense{
		UserID:      "u1",
		Amount:      Money{Cents: 2550},
		Category:    CategoryFood,
		Description: "Lunch",
		Date:        date,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		e    Expense
		want error
	}{
		{"missing user", Expense{Amount: Money{Cents: 1}, Category: CategoryFood, Date: date}, ErrEmptyUserID},
		{"zero amount", Expense{UserID: "u1", Category: CategoryFood, Date: date}, ErrInvalidAmount},
		{"negative amount", Expense{UserID: "u1", Amount: Money{Cents: -5}, Category: CategoryFood, Date: date}, ErrInvalidAmount},
		{"bad category", Expense{UserID: "u1", Amount: Money{Cents: 1}, Category: "Misc", Date: date}, ErrInvalidCategory},
		{"zero date", Expense{UserID: "u1", Amount: Money{Cents: 1}, Category: CategoryFood}, ErrEmptyDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBudgetValidate(t *testing.T) {
	good := Budget{
		UserID: "u1",
		Amount: Money{Cents: 10000},
		Period: Monthly,
		CategoryLimits: map[Category]Money{
			CategoryFood: {Cents: 5000},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Period = "yearly"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}

	bad = good
	bad.CategoryLimits = map[Category]Money{"Misc": {Cents: 100}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}

	bad = good
	bad.CategoryLimits = map[Category]Money{CategoryFood: {Cents: 0}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAccountValidate(t *testing.T) {
	parent := Account{ID: "p1", Name: "Dana", Email: "dana@example.com", Role: RoleParent}
	if err := parent.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	child := Account{ID: "c1", Name: "Sam", Email: "sam@example.com", Role: RoleChild, ParentID: "p1"}
	if err := child.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	orphan := child
	orphan.ParentID = ""
	if err := orphan.Validate(); err == nil {
		t.Fatalf("child without parent id should fail")
	}
	odd := parent
	odd.Role = "admin"
	if err := odd.Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Dana@Example.COM "); got != "dana@example.com" {
		t.Fatalf("got %q", got)
	}
}
