// Package ledger is the data-access and state-sync core: it mediates all
// expense/budget reads and writes, enforces the session's visibility scope,
// retries and throttles fetches, and reconciles optimistic local state with
// the store.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"famiglia/internal/amqp"
	"famiglia/internal/core"
	"famiglia/internal/log"
	"famiglia/internal/session"
	"famiglia/internal/store"
)

// Config tunes fetch behavior. None of the values affect correctness.
type Config struct {
	Retry RetryPolicy

	// Cooldown is the throttle window: a fetch landing within it of the
	// previous completed fetch for the same collection returns cached
	// state without touching the store.
	Cooldown time.Duration

	// QueryLimit caps records per expense query.
	QueryLimit int
}

func DefaultConfig() Config {
	return Config{
		Retry:      DefaultRetryPolicy(),
		Cooldown:   5 * time.Second,
		QueryLimit: store.MaxQueryLimit,
	}
}

type Ledger struct {
	session  *session.Manager
	expenses store.ExpenseStore
	budgets  store.BudgetStore
	events   *amqp.Client // optional; nil skips publishing
	logger   *log.Logger
	config   Config

	mu sync.Mutex
	// Each cached collection is valid only while its generation matches
	// the session generation; logout invalidates both implicitly. The
	// generations are tracked per collection so that refreshing one after
	// a re-login cannot revalidate stale records in the other.
	cachedExpenses  []core.Expense
	cachedBudgets   []core.Budget
	expenseGen      uint64
	budgetGen       uint64
	lastExpenseTime time.Time
	lastBudgetTime  time.Time
}

func New(sess *session.Manager, expenses store.ExpenseStore, budgets store.BudgetStore, events *amqp.Client, logger *log.Logger, config Config) *Ledger {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.QueryLimit <= 0 || config.QueryLimit > store.MaxQueryLimit {
		config.QueryLimit = store.MaxQueryLimit
	}
	return &Ledger{
		session:  sess,
		expenses: expenses,
		budgets:  budgets,
		events:   events,
		logger:   logger.WithComponent(log.ComponentLedger),
		config:   config,
	}
}

// Categories returns the fixed category list consumers rely on.
func (l *Ledger) Categories() []core.Category {
	return core.Categories()
}

// FetchExpenses refreshes the cached expense collection from the store,
// scoped to the current session. Safe to call repeatedly; calls inside the
// cooldown window return cached state.
func (l *Ledger) FetchExpenses(ctx context.Context) ([]core.Expense, error) {
	return l.fetchExpenses(ctx, false)
}

// FetchBudgets is the budget counterpart of FetchExpenses.
func (l *Ledger) FetchBudgets(ctx context.Context) ([]core.Budget, error) {
	return l.fetchBudgets(ctx, false)
}

func (l *Ledger) fetchExpenses(ctx context.Context, force bool) ([]core.Expense, error) {
	account, gen, err := l.sessionScope()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if !force && l.expenseGen == gen && time.Since(l.lastExpenseTime) < l.config.Cooldown {
		snapshot := append([]core.Expense(nil), l.cachedExpenses...)
		l.mu.Unlock()
		return snapshot, nil
	}
	l.mu.Unlock()

	var fetched []core.Expense
	err = l.config.Retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		fetched, attemptErr = l.queryExpenseBatches(ctx, visibleIDs(account))
		return attemptErr
	})
	if err != nil {
		// Exhausted: clear the collection so stale partial data is never
		// served as authoritative.
		l.mu.Lock()
		if l.session.Generation() == gen {
			l.cachedExpenses = nil
			l.expenseGen = gen
			l.lastExpenseTime = time.Time{}
		}
		l.mu.Unlock()
		l.logger.ErrorContext(ctx, "Expense fetch exhausted retries",
			log.FieldOperation, log.OpFetch,
			log.FieldAccountID, account.ID,
			log.FieldError, err.Error())
		return nil, fmt.Errorf("%w: %v", core.ErrFetchFailed, err)
	}

	sort.Slice(fetched, func(i, j int) bool {
		return fetched[i].CreatedAt.After(fetched[j].CreatedAt)
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session.Generation() != gen {
		// Session changed while the fetch was in flight; discard.
		return nil, nil
	}
	l.cachedExpenses = fetched
	l.expenseGen = gen
	l.lastExpenseTime = time.Now()
	return append([]core.Expense(nil), fetched...), nil
}

func (l *Ledger) fetchBudgets(ctx context.Context, force bool) ([]core.Budget, error) {
	account, gen, err := l.sessionScope()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if !force && l.budgetGen == gen && time.Since(l.lastBudgetTime) < l.config.Cooldown {
		snapshot := append([]core.Budget(nil), l.cachedBudgets...)
		l.mu.Unlock()
		return snapshot, nil
	}
	l.mu.Unlock()

	var fetched []core.Budget
	err = l.config.Retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		fetched, attemptErr = l.queryBudgetBatches(ctx, visibleIDs(account))
		return attemptErr
	})
	if err != nil {
		l.mu.Lock()
		if l.session.Generation() == gen {
			l.cachedBudgets = nil
			l.budgetGen = gen
			l.lastBudgetTime = time.Time{}
		}
		l.mu.Unlock()
		l.logger.ErrorContext(ctx, "Budget fetch exhausted retries",
			log.FieldOperation, log.OpFetch,
			log.FieldAccountID, account.ID,
			log.FieldError, err.Error())
		return nil, fmt.Errorf("%w: %v", core.ErrFetchFailed, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session.Generation() != gen {
		return nil, nil
	}
	l.cachedBudgets = fetched
	l.budgetGen = gen
	l.lastBudgetTime = time.Now()
	return append([]core.Budget(nil), fetched...), nil
}

// queryExpenseBatches splits the scope into store-sized id batches and
// merges the results, so a parent with more than ten children still sees
// every child.
func (l *Ledger) queryExpenseBatches(ctx context.Context, ids []string) ([]core.Expense, error) {
	batches := chunkIDs(ids, store.MaxUserIDsPerQuery)
	results := make([][]core.Expense, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			out, err := l.expenses.QueryExpenses(ctx, batch, l.config.QueryLimit)
			if err != nil {
				return fmt.Errorf("query expenses batch %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []core.Expense
	for _, out := range results {
		merged = append(merged, out...)
	}
	return merged, nil
}

func (l *Ledger) queryBudgetBatches(ctx context.Context, ids []string) ([]core.Budget, error) {
	batches := chunkIDs(ids, store.MaxUserIDsPerQuery)
	results := make([][]core.Budget, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			out, err := l.budgets.QueryBudgets(ctx, batch)
			if err != nil {
				return fmt.Errorf("query budgets batch %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []core.Budget
	for _, out := range results {
		merged = append(merged, out...)
	}
	return merged, nil
}

// AddExpense validates, applies an optimistic pending entry, writes to the
// store, and reconciles. The pending entry is rolled back if the store
// rejects the write.
func (l *Ledger) AddExpense(ctx context.Context, userID string, amount core.Money, category core.Category, description string, date time.Time) (core.Expense, error) {
	account, gen, err := l.sessionScope()
	if err != nil {
		return core.Expense{}, err
	}
	if !inScope(account, userID) {
		return core.Expense{}, fmt.Errorf("add expense for %s: %w", userID, core.ErrUnauthorized)
	}

	e := core.Expense{
		UserID:      userID,
		Amount:      amount,
		Category:    category,
		Description: description,
		Date:        date,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := time.Now()
	pending := e
	pending.ID = "pending-" + uuid.NewString()
	pending.CreatedAt = now
	pending.UpdatedAt = now
	pending.Pending = true

	l.mu.Lock()
	if l.expenseGen == gen {
		l.cachedExpenses = append([]core.Expense{pending}, l.cachedExpenses...)
	}
	l.mu.Unlock()

	confirmed, err := l.expenses.InsertExpense(ctx, e)
	if err != nil {
		l.removeExpense(gen, pending.ID)
		l.logger.ErrorContext(ctx, "Expense insert rejected, rolled back",
			log.FieldOperation, log.OpAdd,
			log.FieldUserID, userID,
			log.FieldError, err.Error())
		return core.Expense{}, fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
	}

	l.mu.Lock()
	if l.expenseGen == gen {
		replaced := false
		for i := range l.cachedExpenses {
			if l.cachedExpenses[i].ID == pending.ID {
				l.cachedExpenses[i] = confirmed
				replaced = true
				break
			}
		}
		if !replaced {
			l.cachedExpenses = append([]core.Expense{confirmed}, l.cachedExpenses...)
		}
	}
	l.mu.Unlock()

	l.publishEvent(ctx, log.OpAdd, "expense", confirmed.ID, userID, account.ID)
	l.reconcileExpenses(ctx)
	return confirmed, nil
}

// UpdateExpense patches an expense that is inside the caller's visible
// scope; anything else is NotFound even if the id is store-valid.
func (l *Ledger) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error {
	account, gen, err := l.sessionScope()
	if err != nil {
		return err
	}

	l.mu.Lock()
	var prior *core.Expense
	if l.expenseGen == gen {
		for i := range l.cachedExpenses {
			if l.cachedExpenses[i].ID == id {
				snapshot := l.cachedExpenses[i]
				patched := snapshot
				applyPatch(&patched, patch)
				if err := patched.Validate(); err != nil {
					l.mu.Unlock()
					return err
				}
				prior = &snapshot
				patched.UpdatedAt = time.Now()
				l.cachedExpenses[i] = patched
				break
			}
		}
	}
	l.mu.Unlock()
	if prior == nil {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}

	if err := l.expenses.UpdateExpense(ctx, id, patch); err != nil {
		l.restoreExpense(gen, *prior)
		l.logger.ErrorContext(ctx, "Expense update rejected, rolled back",
			log.FieldOperation, log.OpUpdate,
			log.FieldExpenseID, id,
			log.FieldError, err.Error())
		return fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
	}

	l.publishEvent(ctx, log.OpUpdate, "expense", id, prior.UserID, account.ID)
	l.reconcileExpenses(ctx)
	return nil
}

// DeleteExpense removes an expense from store and cache. Deleting an id
// that is not visible is a no-op, not an error.
func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	account, gen, err := l.sessionScope()
	if err != nil {
		return err
	}

	l.mu.Lock()
	var removed *core.Expense
	if l.expenseGen == gen {
		for i := range l.cachedExpenses {
			if l.cachedExpenses[i].ID == id {
				snapshot := l.cachedExpenses[i]
				removed = &snapshot
				l.cachedExpenses = append(l.cachedExpenses[:i], l.cachedExpenses[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()
	if removed == nil {
		return nil // already absent
	}

	if err := l.expenses.DeleteExpense(ctx, id); err != nil {
		l.restoreExpense(gen, *removed)
		return fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
	}

	l.publishEvent(ctx, log.OpDelete, "expense", id, removed.UserID, account.ID)
	l.reconcileExpenses(ctx)
	return nil
}

// SetBudget upserts the single budget record for userID. Only the owner, or
// a parent acting on themself or a linked child, may call it; the gate runs
// before any store access.
func (l *Ledger) SetBudget(ctx context.Context, userID string, amount core.Money, period core.Period, limits map[core.Category]core.Money) (core.Budget, error) {
	account, gen, err := l.sessionScope()
	if err != nil {
		return core.Budget{}, err
	}
	if !canSetBudget(account, userID) {
		return core.Budget{}, fmt.Errorf("set budget for %s: %w", userID, core.ErrUnauthorized)
	}

	b := core.Budget{
		UserID:         userID,
		Amount:         amount,
		Period:         period,
		CategoryLimits: limits,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	existing, err := l.budgets.QueryBudgets(ctx, []string{userID})
	if err != nil {
		return core.Budget{}, fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
	}

	if len(existing) > 0 {
		b.ID = existing[0].ID
		if limits == nil {
			// The store keeps existing limits on a nil-limits update, so
			// the record we cache must carry them too.
			b.CategoryLimits = existing[0].CategoryLimits
		}
		if err := l.budgets.UpdateBudget(ctx, b.ID, amount, period, limits); err != nil {
			return core.Budget{}, fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
		}
	} else {
		b, err = l.budgets.InsertBudget(ctx, b)
		if err != nil {
			return core.Budget{}, fmt.Errorf("%w: %v", core.ErrWriteFailed, err)
		}
	}

	l.mu.Lock()
	if l.budgetGen != gen {
		// Seed the cache for the current session. A collection left over
		// from a previous generation is discarded, and the zeroed fetch
		// time forces the next FetchBudgets to hit the store.
		l.cachedBudgets = nil
		l.budgetGen = gen
		l.lastBudgetTime = time.Time{}
	}
	replaced := false
	for i := range l.cachedBudgets {
		if l.cachedBudgets[i].UserID == userID {
			l.cachedBudgets[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		l.cachedBudgets = append(l.cachedBudgets, b)
	}
	l.mu.Unlock()

	l.publishEvent(ctx, log.OpSetBudget, "budget", b.ID, userID, account.ID)
	return b, nil
}

// UserExpenses filters the cached collection; it never touches the store.
func (l *Ledger) UserExpenses(userID string) []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expenseGen != l.session.Generation() {
		return nil
	}
	var out []core.Expense
	for _, e := range l.cachedExpenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// UserBudget returns the cached budget for userID, or nil when none is set.
func (l *Ledger) UserBudget(userID string) *core.Budget {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budgetGen != l.session.Generation() {
		return nil
	}
	for _, b := range l.cachedBudgets {
		if b.UserID == userID {
			snapshot := b
			return &snapshot
		}
	}
	return nil
}

// Expenses returns a snapshot of the cached expense collection.
func (l *Ledger) Expenses() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expenseGen != l.session.Generation() {
		return nil
	}
	return append([]core.Expense(nil), l.cachedExpenses...)
}

// Budgets returns a snapshot of the cached budget collection.
func (l *Ledger) Budgets() []core.Budget {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.budgetGen != l.session.Generation() {
		return nil
	}
	return append([]core.Budget(nil), l.cachedBudgets...)
}

// reconcileExpenses re-fetches after a confirmed write so server-side
// normalization (ids, timestamps) replaces the optimistic view. Failures
// only log: the write itself already succeeded.
func (l *Ledger) reconcileExpenses(ctx context.Context) {
	if _, err := l.fetchExpenses(ctx, true); err != nil {
		l.logger.WarnContext(ctx, "Reconciling fetch failed",
			log.FieldOperation, log.OpFetch,
			log.FieldError, err.Error())
	}
}

func (l *Ledger) sessionScope() (*core.Account, uint64, error) {
	account := l.session.Current()
	if account == nil {
		return nil, 0, fmt.Errorf("no active session: %w", core.ErrUnauthorized)
	}
	return account, l.session.Generation(), nil
}

func (l *Ledger) removeExpense(gen uint64, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expenseGen != gen {
		return
	}
	for i := range l.cachedExpenses {
		if l.cachedExpenses[i].ID == id {
			l.cachedExpenses = append(l.cachedExpenses[:i], l.cachedExpenses[i+1:]...)
			return
		}
	}
}

func (l *Ledger) restoreExpense(gen uint64, e core.Expense) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.expenseGen != gen {
		return
	}
	for i := range l.cachedExpenses {
		if l.cachedExpenses[i].ID == e.ID {
			l.cachedExpenses[i] = e
			return
		}
	}
	l.cachedExpenses = append([]core.Expense{e}, l.cachedExpenses...)
}

func (l *Ledger) publishEvent(ctx context.Context, operation, kind, recordID, userID, actorID string) {
	if l.events == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(operation, kind, recordID, userID, actorID)
	if err := l.events.PublishLedgerEvent(ctx, msg); err != nil {
		l.logger.WarnContext(ctx, "Event publish failed",
			log.FieldOperation, operation,
			log.FieldError, err.Error())
	}
}

// visibleIDs is the visibility scope: self for a child, self plus linked
// children for a parent.
func visibleIDs(account *core.Account) []string {
	ids := []string{account.ID}
	if account.Role == core.RoleParent {
		ids = append(ids, account.Children...)
	}
	return ids
}

func inScope(account *core.Account, userID string) bool {
	for _, id := range visibleIDs(account) {
		if id == userID {
			return true
		}
	}
	return false
}

func canSetBudget(account *core.Account, userID string) bool {
	if account.ID == userID {
		return true
	}
	return account.Role == core.RoleParent && inScope(account, userID)
}

func applyPatch(e *core.Expense, patch core.ExpensePatch) {
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
}

func chunkIDs(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
