// Package sqlite persists expenses and budgets in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"famiglia/internal/core"
	"famiglia/internal/store"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

var (
	_ store.ExpenseStore = (*Store)(nil)
	_ store.BudgetStore  = (*Store)(nil)
)

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) QueryExpenses(ctx context.Context, userIDs []string, limit int) ([]core.Expense, error) {
	if limit <= 0 || limit > store.MaxQueryLimit {
		limit = store.MaxQueryLimit
	}
	ids := nonEmpty(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, amount_cents, category, description, date, created_at, updated_at
		FROM expenses
		WHERE user_id IN (%s)
		ORDER BY created_at DESC
		LIMIT ?`, placeholders(len(ids)))

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e                      core.Expense
			cents                  int64
			date, created, updated string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &cents, &e.Category, &e.Description, &date, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Amount = core.Money{Cents: cents}
		if e.Date, err = time.Parse(timeLayout, date); err != nil {
			return nil, fmt.Errorf("parse expense date: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse expense created_at: %w", err)
		}
		if e.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse expense updated_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *Store) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Pending = false

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, user_id, amount_cents, category, description, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.Cents, string(e.Category), e.Description,
		e.Date.UTC().Format(timeLayout), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error {
	var sets []string
	var args []any
	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, patch.Amount.Cents)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, string(*patch.Category))
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, patch.Date.UTC().Format(timeLayout))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	// Deleting an absent id is a no-op, matching the in-memory store.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

func (s *Store) QueryBudgets(ctx context.Context, userIDs []string) ([]core.Budget, error) {
	ids := nonEmpty(userIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, amount_cents, period, category_limits
		FROM budgets
		WHERE user_id IN (%s)
		ORDER BY user_id`, placeholders(len(ids)))

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b      core.Budget
			cents  int64
			limits string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &cents, &b.Period, &limits); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Amount = core.Money{Cents: cents}
		if b.CategoryLimits, err = decodeLimits(limits); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

func (s *Store) InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	now := time.Now().UTC().Format(timeLayout)
	b.ID = uuid.NewString()
	limits, err := encodeLimits(b.CategoryLimits)
	if err != nil {
		return core.Budget{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, amount_cents, period, category_limits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Amount.Cents, string(b.Period), limits, now, now)
	if err != nil {
		return core.Budget{}, fmt.Errorf("insert budget: %w", err)
	}
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, id string, amount core.Money, period core.Period, limits map[core.Category]core.Money) error {
	query := `
		UPDATE budgets
		SET amount_cents = ?, period = ?, updated_at = ?
		WHERE id = ?`
	args := []any{amount.Cents, string(period), time.Now().UTC().Format(timeLayout), id}

	if limits != nil {
		// The limits map is replaced wholesale, not merged per key.
		encoded, err := encodeLimits(limits)
		if err != nil {
			return err
		}
		query = `
		UPDATE budgets
		SET amount_cents = ?, period = ?, category_limits = ?, updated_at = ?
		WHERE id = ?`
		args = []any{amount.Cents, string(period), encoded, time.Now().UTC().Format(timeLayout), id}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update budget rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func encodeLimits(limits map[core.Category]core.Money) (string, error) {
	if limits == nil {
		return "{}", nil
	}
	flat := make(map[string]int64, len(limits))
	for cat, m := range limits {
		flat[string(cat)] = m.Cents
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("encode category limits: %w", err)
	}
	return string(raw), nil
}

func decodeLimits(raw string) (map[core.Category]core.Money, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	flat := make(map[string]int64)
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, fmt.Errorf("decode category limits: %w", err)
	}
	limits := make(map[core.Category]core.Money, len(flat))
	for cat, cents := range flat {
		limits[core.Category(cat)] = core.Money{Cents: cents}
	}
	return limits, nil
}

func nonEmpty(ids []string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
