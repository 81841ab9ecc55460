package google

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"famiglia/internal/core"
)

const rowTimeLayout = time.RFC3339Nano

// Expense rows are A:H: id, user_id, amount_cents, category, description,
// date, created_at, updated_at. Budget rows are A:E: id, user_id,
// amount_cents, period, category_limits (JSON).

func encodeExpenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.UserID,
		strconv.FormatInt(e.Amount.Cents, 10),
		string(e.Category),
		e.Description,
		e.Date.UTC().Format(rowTimeLayout),
		e.CreatedAt.UTC().Format(rowTimeLayout),
		e.UpdatedAt.UTC().Format(rowTimeLayout),
	}
}

// decodeExpenseRow returns ok=false for blank rows, which cleared deletes
// leave behind.
func decodeExpenseRow(row []any) (core.Expense, bool, error) {
	if isBlank(row) {
		return core.Expense{}, false, nil
	}
	if len(row) < 8 {
		return core.Expense{}, false, fmt.Errorf("expense row has %d cells, want 8", len(row))
	}

	var e core.Expense
	e.ID = cell(row, 0)
	e.UserID = cell(row, 1)

	cents, err := strconv.ParseInt(cell(row, 2), 10, 64)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("parse amount: %w", err)
	}
	e.Amount = core.Money{Cents: cents}
	e.Category = core.Category(cell(row, 3))
	e.Description = cell(row, 4)

	if e.Date, err = time.Parse(rowTimeLayout, cell(row, 5)); err != nil {
		return core.Expense{}, false, fmt.Errorf("parse date: %w", err)
	}
	if e.CreatedAt, err = time.Parse(rowTimeLayout, cell(row, 6)); err != nil {
		return core.Expense{}, false, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(rowTimeLayout, cell(row, 7)); err != nil {
		return core.Expense{}, false, fmt.Errorf("parse updated_at: %w", err)
	}
	return e, true, nil
}

func encodeBudgetRow(b core.Budget) ([]any, error) {
	limits := map[string]int64{}
	for cat, m := range b.CategoryLimits {
		limits[string(cat)] = m.Cents
	}
	raw, err := json.Marshal(limits)
	if err != nil {
		return nil, fmt.Errorf("encode category limits: %w", err)
	}
	return []any{
		b.ID,
		b.UserID,
		strconv.FormatInt(b.Amount.Cents, 10),
		string(b.Period),
		string(raw),
	}, nil
}

func decodeBudgetRow(row []any) (core.Budget, bool, error) {
	if isBlank(row) {
		return core.Budget{}, false, nil
	}
	if len(row) < 5 {
		return core.Budget{}, false, fmt.Errorf("budget row has %d cells, want 5", len(row))
	}

	var b core.Budget
	b.ID = cell(row, 0)
	b.UserID = cell(row, 1)

	cents, err := strconv.ParseInt(cell(row, 2), 10, 64)
	if err != nil {
		return core.Budget{}, false, fmt.Errorf("parse amount: %w", err)
	}
	b.Amount = core.Money{Cents: cents}
	b.Period = core.Period(cell(row, 3))

	flat := map[string]int64{}
	if raw := cell(row, 4); raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &flat); err != nil {
			return core.Budget{}, false, fmt.Errorf("decode category limits: %w", err)
		}
	}
	if len(flat) > 0 {
		b.CategoryLimits = make(map[core.Category]core.Money, len(flat))
		for cat, cents := range flat {
			b.CategoryLimits[core.Category(cat)] = core.Money{Cents: cents}
		}
	}
	return b, true, nil
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func isBlank(row []any) bool {
	for i := range row {
		if cell(row, i) != "" {
			return false
		}
	}
	return true
}
