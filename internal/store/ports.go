// Package store defines the expense/budget document-store ports the ledger
// reads and writes through.
package store

import (
	"context"

	"famiglia/internal/core"
)

// Practical limits of the backing document stores. Callers batch scope
// queries beyond MaxUserIDsPerQuery and merge the results.
const (
	MaxQueryLimit      = 100
	MaxUserIDsPerQuery = 10
)

type (
	// ExpenseStore is the durable owner of expense records.
	ExpenseStore interface {
		// QueryExpenses returns records whose UserID is in userIDs,
		// newest first, at most limit records. len(userIDs) must not
		// exceed MaxUserIDsPerQuery.
		QueryExpenses(ctx context.Context, userIDs []string, limit int) ([]core.Expense, error)

		// InsertExpense stores a new record, assigning id and timestamps,
		// and returns the stored record.
		InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)

		// UpdateExpense applies the patch and refreshes UpdatedAt.
		UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error

		// DeleteExpense removes the record. Deleting an unknown id is
		// not an error.
		DeleteExpense(ctx context.Context, id string) error
	}

	// BudgetStore is the durable owner of budget records. There is no
	// delete: budgets are upserted by the ledger and live forever.
	BudgetStore interface {
		QueryBudgets(ctx context.Context, userIDs []string) ([]core.Budget, error)

		InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)

		UpdateBudget(ctx context.Context, id string, amount core.Money, period core.Period, limits map[core.Category]core.Money) error
	}
)
