// Package memory provides in-process expense/budget stores used by tests
// and the default backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"famiglia/internal/core"
	"famiglia/internal/store"
)

type Store struct {
	mu       sync.Mutex
	expenses map[string]core.Expense
	budgets  map[string]core.Budget
}

var (
	_ store.ExpenseStore = (*Store)(nil)
	_ store.BudgetStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		expenses: make(map[string]core.Expense),
		budgets:  make(map[string]core.Budget),
	}
}

func (s *Store) QueryExpenses(_ context.Context, userIDs []string, limit int) ([]core.Expense, error) {
	if limit <= 0 || limit > store.MaxQueryLimit {
		limit = store.MaxQueryLimit
	}
	want := idSet(userIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Expense
	for _, e := range s.expenses {
		if _, ok := want[e.UserID]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Pending = false
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, id string, patch core.ExpensePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok {
		return core.ErrNotFound
	}
	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	e.UpdatedAt = time.Now().UTC()
	if err := e.Validate(); err != nil {
		return err
	}
	s.expenses[id] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expenses, id)
	return nil
}

func (s *Store) QueryBudgets(_ context.Context, userIDs []string) ([]core.Budget, error) {
	want := idSet(userIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Budget
	for _, b := range s.budgets {
		if _, ok := want[b.UserID]; ok {
			out = append(out, copyBudget(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) InsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = uuid.NewString()
	s.budgets[b.ID] = copyBudget(b)
	return b, nil
}

func (s *Store) UpdateBudget(_ context.Context, id string, amount core.Money, period core.Period, limits map[core.Category]core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.budgets[id]
	if !ok {
		return core.ErrNotFound
	}
	b.Amount = amount
	b.Period = period
	if limits != nil {
		// The limits map is replaced wholesale, not merged per key.
		b.CategoryLimits = limits
	}
	if err := b.Validate(); err != nil {
		return err
	}
	s.budgets[id] = copyBudget(b)
	return nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func copyBudget(b core.Budget) core.Budget {
	if b.CategoryLimits == nil {
		return b
	}
	limits := make(map[core.Category]core.Money, len(b.CategoryLimits))
	for k, v := range b.CategoryLimits {
		limits[k] = v
	}
	b.CategoryLimits = limits
	return b
}
