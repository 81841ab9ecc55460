// Package google backs the expense and budget stores with a Google
// Spreadsheet, one id-keyed row per record. It exists for households that
// want their data in a sheet they can open; the SQLite backend is the
// default.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/google/uuid"

	"famiglia/internal/core"
	"famiglia/internal/store"
)

const (
	defaultExpensesSheet = "Expenses"
	defaultBudgetsSheet  = "Budgets"

	expenseRange = "!A2:H"
	budgetRange  = "!A2:E"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	budgetsSheet  string
}

// Ensure interface conformance
var (
	_ store.ExpenseStore = (*Client)(nil)
	_ store.BudgetStore  = (*Client)(nil)
)

// NewFromEnv creates a Sheets-backed store using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_EXPENSES_SHEET_NAME (default "Expenses"),
// GOOGLE_BUDGETS_SHEET_NAME (default "Budgets").
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	expensesSheet := strings.TrimSpace(os.Getenv("GOOGLE_EXPENSES_SHEET_NAME"))
	if expensesSheet == "" {
		expensesSheet = defaultExpensesSheet
	}
	budgetsSheet := strings.TrimSpace(os.Getenv("GOOGLE_BUDGETS_SHEET_NAME"))
	if budgetsSheet == "" {
		budgetsSheet = defaultBudgetsSheet
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		expensesSheet: expensesSheet,
		budgetsSheet:  budgetsSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) QueryExpenses(ctx context.Context, userIDs []string, limit int) ([]core.Expense, error) {
	if limit <= 0 || limit > store.MaxQueryLimit {
		limit = store.MaxQueryLimit
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil, nil
	}

	rows, err := c.readRows(ctx, c.expensesSheet+expenseRange)
	if err != nil {
		return nil, err
	}

	var out []core.Expense
	for i, row := range rows {
		e, ok, err := decodeExpenseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d in %s: %w", i+2, c.expensesSheet, err)
		}
		if !ok {
			continue
		}
		if _, match := want[e.UserID]; match {
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

func (c *Client) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if c.svc == nil {
		return core.Expense{}, errors.New("sheets service not initialized")
	}

	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Pending = false

	vr := &gsheet.ValueRange{Values: [][]any{encodeExpenseRow(e)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.expensesSheet+expenseRange, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.Expense{}, fmt.Errorf("append to sheet %s: %w", c.expensesSheet, err)
	}
	return e, nil
}

func (c *Client) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rowIdx, e, err := c.findExpense(ctx, id)
	if err != nil {
		return err
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

	rng := fmt.Sprintf("%s!A%d:H%d", c.expensesSheet, rowIdx, rowIdx)
	vr := &gsheet.ValueRange{Values: [][]any{encodeExpenseRow(e)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d in %s: %w", rowIdx, c.expensesSheet, err)
	}
	return nil
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rowIdx, _, err := c.findExpense(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleting an absent id is a no-op, matching the other stores.
		return nil
	}
	if err != nil {
		return err
	}

	// Clear rather than delete the dimension: readers skip blank rows, and
	// clearing needs no sheet-id lookup.
	rng := fmt.Sprintf("%s!A%d:H%d", c.expensesSheet, rowIdx, rowIdx)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %d in %s: %w", rowIdx, c.expensesSheet, err)
	}
	return nil
}

func (c *Client) QueryBudgets(ctx context.Context, userIDs []string) ([]core.Budget, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil, nil
	}

	rows, err := c.readRows(ctx, c.budgetsSheet+budgetRange)
	if err != nil {
		return nil, err
	}

	var out []core.Budget
	for i, row := range rows {
		b, ok, err := decodeBudgetRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d in %s: %w", i+2, c.budgetsSheet, err)
		}
		if !ok {
			continue
		}
		if _, match := want[b.UserID]; match {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (c *Client) InsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if c.svc == nil {
		return core.Budget{}, errors.New("sheets service not initialized")
	}

	b.ID = uuid.NewString()
	row, err := encodeBudgetRow(b)
	if err != nil {
		return core.Budget{}, err
	}

	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.budgetsSheet+budgetRange, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return core.Budget{}, fmt.Errorf("append to sheet %s: %w", c.budgetsSheet, err)
	}
	return b, nil
}

func (c *Client) UpdateBudget(ctx context.Context, id string, amount core.Money, period core.Period, limits map[core.Category]core.Money) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rowIdx, b, err := c.findBudget(ctx, id)
	if err != nil {
		return err
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

	row, err := encodeBudgetRow(b)
	if err != nil {
		return err
	}
	rng := fmt.Sprintf("%s!A%d:E%d", c.budgetsSheet, rowIdx, rowIdx)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d in %s: %w", rowIdx, c.budgetsSheet, err)
	}
	return nil
}

func (c *Client) readRows(ctx context.Context, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// findExpense returns the 1-based sheet row holding id.
func (c *Client) findExpense(ctx context.Context, id string) (int, core.Expense, error) {
	rows, err := c.readRows(ctx, c.expensesSheet+expenseRange)
	if err != nil {
		return 0, core.Expense{}, err
	}
	for i, row := range rows {
		e, ok, err := decodeExpenseRow(row)
		if err != nil {
			return 0, core.Expense{}, fmt.Errorf("row %d in %s: %w", i+2, c.expensesSheet, err)
		}
		if ok && e.ID == id {
			return i + 2, e, nil
		}
	}
	return 0, core.Expense{}, core.ErrNotFound
}

func (c *Client) findBudget(ctx context.Context, id string) (int, core.Budget, error) {
	rows, err := c.readRows(ctx, c.budgetsSheet+budgetRange)
	if err != nil {
		return 0, core.Budget{}, err
	}
	for i, row := range rows {
		b, ok, err := decodeBudgetRow(row)
		if err != nil {
			return 0, core.Budget{}, fmt.Errorf("row %d in %s: %w", i+2, c.budgetsSheet, err)
		}
		if ok && b.ID == id {
			return i + 2, b, nil
		}
	}
	return 0, core.Budget{}, core.ErrNotFound
}
