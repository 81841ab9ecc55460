package ledger

import (
	"time"

	"famiglia/internal/core"
)

// DailyTotal is one day's spending, keyed by the calendar day.
type DailyTotal struct {
	Day   time.Time
	Total core.Money
}

// MonthlyTotal is one calendar month's spending.
type MonthlyTotal struct {
	Month time.Time // first of the month
	Total core.Money
}

// BudgetUsage reports spending against a budget's limit inside the budget's
// active window.
type BudgetUsage struct {
	Spent   core.Money
	Limit   core.Money
	Percent float64
	Over    bool
}

// CategoryTotals sums expense amounts per category. Categories with no
// expenses are absent from the result.
func CategoryTotals(expenses []core.Expense) map[core.Category]core.Money {
	totals := make(map[core.Category]core.Money)
	for _, e := range expenses {
		t := totals[e.Category]
		t.Cents += e.Amount.Cents
		totals[e.Category] = t
	}
	return totals
}

// DailyTotals returns per-day spending for the trailing days calendar days
// ending at asOf, oldest first. Days without expenses appear with a zero
// total so charts get a continuous axis.
func DailyTotals(expenses []core.Expense, days int, asOf time.Time) []DailyTotal {
	if days <= 0 {
		return nil
	}
	end := truncateDay(asOf)
	byDay := make(map[time.Time]int64)
	for _, e := range expenses {
		byDay[truncateDay(e.Date)] += e.Amount.Cents
	}

	out := make([]DailyTotal, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := end.AddDate(0, 0, -i)
		out = append(out, DailyTotal{
			Day:   day,
			Total: core.Money{Cents: byDay[day]},
		})
	}
	return out
}

// MonthlyTotals returns per-month spending for the trailing twelve calendar
// months ending at asOf's month, oldest first, zero-filled.
func MonthlyTotals(expenses []core.Expense, asOf time.Time) []MonthlyTotal {
	end := truncateMonth(asOf)
	byMonth := make(map[time.Time]int64)
	for _, e := range expenses {
		byMonth[truncateMonth(e.Date)] += e.Amount.Cents
	}

	out := make([]MonthlyTotal, 0, 12)
	for i := 11; i >= 0; i-- {
		month := end.AddDate(0, -i, 0)
		out = append(out, MonthlyTotal{
			Month: month,
			Total: core.Money{Cents: byMonth[month]},
		})
	}
	return out
}

// Usage computes spending against budget within the budget's window as of
// asOf. Monthly budgets cover the calendar month containing asOf; weekly
// budgets cover the trailing seven days.
func Usage(budget core.Budget, expenses []core.Expense, asOf time.Time) BudgetUsage {
	var start time.Time
	switch budget.Period {
	case core.Monthly:
		start = truncateMonth(asOf)
	case core.Weekly:
		start = truncateDay(asOf).AddDate(0, 0, -6)
	default:
		start = truncateMonth(asOf)
	}

	var spent int64
	for _, e := range expenses {
		if e.UserID != budget.UserID {
			continue
		}
		d := truncateDay(e.Date)
		if d.Before(start) || d.After(truncateDay(asOf)) {
			continue
		}
		spent += e.Amount.Cents
	}

	usage := BudgetUsage{
		Spent: core.Money{Cents: spent},
		Limit: budget.Amount,
		Over:  spent > budget.Amount.Cents,
	}
	if budget.Amount.Cents > 0 {
		usage.Percent = float64(spent) / float64(budget.Amount.Cents) * 100
	}
	return usage
}

// CategoryUsage is Usage restricted to a single category, against that
// category's limit when one is set.
func CategoryUsage(budget core.Budget, expenses []core.Expense, category core.Category, asOf time.Time) BudgetUsage {
	limit, ok := budget.CategoryLimits[category]
	if !ok {
		return BudgetUsage{}
	}

	var scoped []core.Expense
	for _, e := range expenses {
		if e.Category == category {
			scoped = append(scoped, e)
		}
	}
	scopedBudget := budget
	scopedBudget.Amount = limit
	return Usage(scopedBudget, scoped, asOf)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func truncateMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
