// Package session owns the authenticated account for the running app:
// login, registration, logout, profile updates, and a subscribable
// authentication-state stream the ledger reacts to. There is no ambient
// singleton; everything flows through an injected Manager.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"famiglia/internal/amqp"
	"famiglia/internal/cache"
	"famiglia/internal/core"
	"famiglia/internal/identity"
	"famiglia/internal/log"
)

// MinPasswordLen is enforced at registration in addition to whatever the
// identity provider requires.
const MinPasswordLen = 6

var ErrWeakCredential = errors.New("password too short")

// State is one snapshot of the authentication stream.
type State struct {
	Account *core.Account
	Loading bool
}

type Manager struct {
	store  identity.Store
	audit  *amqp.Client // optional; nil skips publishing
	logger *log.Logger

	// Directory lookups are memoized so repeated scope resolution does
	// not hammer the identity store.
	accounts *cache.LRUCache[core.Account]

	mu      sync.Mutex
	current *core.Account
	loading bool
	gen     uint64
	subs    map[int]chan State
	nextSub int
}

func NewManager(store identity.Store, audit *amqp.Client, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		store:    store,
		audit:    audit,
		logger:   logger.WithComponent(log.ComponentSession),
		accounts: cache.NewLRUCache[core.Account](64, 2*time.Minute),
		subs:     make(map[int]chan State),
	}
}

// AccountCache exposes the directory cache for cleanup registration.
func (m *Manager) AccountCache() *cache.LRUCache[core.Account] {
	return m.accounts
}

// Login authenticates and sets the current account. On any failure the
// session is left fully unset.
func (m *Manager) Login(ctx context.Context, email, password string) (core.Account, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	email = core.NormalizeEmail(email)
	if !validEmail(email) {
		return core.Account{}, fmt.Errorf("email %q: %w", email, identity.ErrInvalidEmail)
	}
	id, err := m.store.Authenticate(ctx, email, password)
	if err != nil {
		m.logger.WarnContext(ctx, "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldEmail, email,
			log.FieldError, err.Error())
		return core.Account{}, err
	}

	account, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("load directory record: %w", err)
	}
	m.accounts.Set(account.ID, account)

	m.setCurrent(&account)
	m.logger.InfoContext(ctx, "Logged in",
		log.FieldAccountID, account.ID,
		log.FieldRole, string(account.Role))
	return account, nil
}

// Register creates the identity and directory record, binds a child to its
// parent, and sets the new account as the current session.
func (m *Manager) Register(ctx context.Context, name, email, password string, role core.Role, parentID string) (core.Account, error) {
	if len(password) < MinPasswordLen {
		return core.Account{}, ErrWeakCredential
	}

	account := core.Account{
		Name:  name,
		Email: core.NormalizeEmail(email),
		Role:  role,
	}
	if !validEmail(account.Email) {
		return core.Account{}, fmt.Errorf("email %q: %w", account.Email, identity.ErrInvalidEmail)
	}
	if role == core.RoleChild {
		account.ParentID = parentID
	}
	if err := account.Validate(); err != nil {
		return core.Account{}, err
	}

	if role == core.RoleChild {
		parent, err := m.Resolve(ctx, parentID)
		if err != nil {
			return core.Account{}, fmt.Errorf("verify parent %s: %w", parentID, err)
		}
		if parent.Role != core.RoleParent {
			return core.Account{}, fmt.Errorf("account %s: %w", parentID, core.ErrInvalidRole)
		}
	}

	id, err := m.store.CreateAccount(ctx, account, password)
	if err != nil {
		return core.Account{}, err
	}
	account.ID = id
	if role == core.RoleParent {
		account.Children = []string{}
	}

	if role == core.RoleChild {
		// The account insert and the parent's children append are two
		// separate writes. A crash in between leaves the link dangling,
		// so the append is followed by a reconcile pass; the background
		// reconciler converges any remaining drift (including two
		// children racing on the same parent).
		if err := m.appendChildToParent(ctx, parentID, id); err != nil {
			m.logger.ErrorContext(ctx, "Parent link append failed, deferring to reconciler",
				log.FieldParentID, parentID,
				log.FieldAccountID, id,
				log.FieldError, err.Error())
			m.publishAudit(ctx, log.OpRegister, id, "parent link append failed: "+err.Error())
		}
		if err := m.ReconcileFamily(ctx, parentID); err != nil {
			m.logger.WarnContext(ctx, "Family reconcile after registration failed",
				log.FieldParentID, parentID,
				log.FieldError, err.Error())
		}
	}

	m.setCurrent(&account)
	m.logger.InfoContext(ctx, "Registered",
		log.FieldAccountID, id,
		log.FieldRole, string(role),
		log.FieldParentID, parentID)
	return account, nil
}

// Logout clears the session synchronously and never fails. Transport
// problems on the audit channel are swallowed after logging.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	var accountID string
	if m.current != nil {
		accountID = m.current.ID
	}
	m.current = nil
	m.gen++
	m.mu.Unlock()

	m.accounts.Clear()
	m.notify()

	if accountID != "" {
		m.publishAudit(ctx, log.OpLogout, accountID, "")
		m.logger.InfoContext(ctx, "Logged out", log.FieldAccountID, accountID)
	}
}

// UpdateProfile merges fields into the current account and persists them.
// A call without a session is a no-op, not an error.
func (m *Manager) UpdateProfile(ctx context.Context, patch core.AccountPatch) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return nil
	}
	id := m.current.ID
	m.mu.Unlock()

	if err := m.store.UpdateAccount(ctx, id, patch); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	m.mu.Lock()
	if m.current != nil && m.current.ID == id {
		if patch.Name != nil {
			m.current.Name = *patch.Name
		}
		if patch.Avatar != nil {
			m.current.Avatar = *patch.Avatar
		}
		if patch.Children != nil {
			m.current.Children = append([]string(nil), (*patch.Children)...)
		}
	}
	m.mu.Unlock()

	m.accounts.Delete(id)
	m.notify()
	return nil
}

// Restore loads a previously authenticated account at app start.
func (m *Manager) Restore(ctx context.Context, accountID string) (core.Account, error) {
	m.setLoading(true)
	defer m.setLoading(false)

	account, err := m.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, fmt.Errorf("restore session: %w", err)
	}
	m.accounts.Set(account.ID, account)
	m.setCurrent(&account)
	return account, nil
}

// Current returns a copy of the current account, or nil when logged out.
func (m *Manager) Current() *core.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.current)
}

// Generation changes whenever the session identity changes. In-flight
// fetches capture it and discard their results on mismatch.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Subscribe returns a stream of authentication states and a cancel func.
// Slow consumers miss intermediate states rather than block the manager.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 8)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Resolve returns the directory record for an account id, memoized.
func (m *Manager) Resolve(ctx context.Context, id string) (core.Account, error) {
	if account, ok := m.accounts.Get(id); ok {
		return account, nil
	}
	account, err := m.store.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	m.accounts.Set(id, account)
	return account, nil
}

// ReconcileFamily recomputes a parent's children list from ParentID scans
// and repairs the stored record when it drifted. Existing order is kept;
// missing ids are appended in sorted order.
func (m *Manager) ReconcileFamily(ctx context.Context, parentID string) error {
	parent, err := m.store.GetAccount(ctx, parentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", parentID, err)
	}
	if parent.Role != core.RoleParent {
		return fmt.Errorf("account %s: %w", parentID, core.ErrInvalidRole)
	}

	linked, err := m.store.QueryAccounts(ctx, identity.Filter{Role: core.RoleChild, ParentID: parentID})
	if err != nil {
		return fmt.Errorf("scan children of %s: %w", parentID, err)
	}
	actual := make(map[string]struct{}, len(linked))
	for _, child := range linked {
		actual[child.ID] = struct{}{}
	}

	var children []string
	for _, id := range parent.Children {
		if _, ok := actual[id]; ok {
			children = append(children, id)
			delete(actual, id)
		}
	}
	var missing []string
	for id := range actual {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	children = append(children, missing...)

	if equalIDs(parent.Children, children) {
		return nil
	}

	m.logger.InfoContext(ctx, "Repairing family link",
		log.FieldOperation, log.OpReconcile,
		log.FieldParentID, parentID,
		log.FieldCount, len(children))

	if err := m.store.UpdateAccount(ctx, parentID, core.AccountPatch{Children: &children}); err != nil {
		return fmt.Errorf("update parent %s: %w", parentID, err)
	}
	m.accounts.Delete(parentID)

	m.mu.Lock()
	if m.current != nil && m.current.ID == parentID {
		m.current.Children = append([]string(nil), children...)
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *Manager) appendChildToParent(ctx context.Context, parentID, childID string) error {
	parent, err := m.store.GetAccount(ctx, parentID)
	if err != nil {
		return err
	}
	for _, id := range parent.Children {
		if id == childID {
			return nil
		}
	}
	children := append(append([]string(nil), parent.Children...), childID)
	if err := m.store.UpdateAccount(ctx, parentID, core.AccountPatch{Children: &children}); err != nil {
		return err
	}
	m.accounts.Delete(parentID)
	return nil
}

func (m *Manager) setCurrent(account *core.Account) {
	m.mu.Lock()
	m.current = cloneAccount(account)
	m.gen++
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mu.Lock()
	state := State{Account: cloneAccount(m.current), Loading: m.loading}
	subs := make([]chan State, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- state:
		default:
		}
	}
}

func (m *Manager) publishAudit(ctx context.Context, operation, accountID, detail string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.PublishAudit(ctx, amqp.NewAuditMessage(operation, accountID, detail)); err != nil {
		m.logger.WarnContext(ctx, "Audit publish failed",
			log.FieldOperation, operation,
			log.FieldError, err.Error())
	}
}

func cloneAccount(a *core.Account) *core.Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Children = append([]string(nil), a.Children...)
	return &clone
}

// validEmail is a shape check, not RFC validation: one @ with something on
// both sides. The identity provider applies its own rules on top.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.Contains(email[at+1:], "@")
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
