package session

import (
	"context"
	"errors"
	"testing"

	"famiglia/internal/core"
	"famiglia/internal/identity"
	idmem "famiglia/internal/identity/memory"
)

func newManager(t *testing.T) (*Manager, *idmem.Store) {
	t.Helper()
	store := idmem.New()
	return NewManager(store, nil, nil), store
}

func registerParent(t *testing.T, m *Manager) core.Account {
	t.Helper()
	parent, err := m.Register(context.Background(), "Dana", "dana@example.com", "secret1", core.RoleParent, "")
	if err != nil {
		t.Fatalf("register parent: %v", err)
	}
	return parent
}

func TestLoginSuccess(t *testing.T) {
	m, _ := newManager(t)
	parent := registerParent(t, m)
	m.Logout(context.Background())

	got, err := m.Login(context.Background(), "  DANA@example.com ", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != parent.ID {
		t.Fatalf("logged in as %q, want %q", got.ID, parent.ID)
	}
	if cur := m.Current(); cur == nil || cur.ID != parent.ID {
		t.Fatalf("current = %+v", cur)
	}
}

func TestLoginFailureLeavesNoSession(t *testing.T) {
	m, _ := newManager(t)
	registerParent(t, m)
	m.Logout(context.Background())

	_, err := m.Login(context.Background(), "dana@example.com", "wrong")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if m.Current() != nil {
		t.Fatalf("failed login must not leave a partial session")
	}
}

func TestLoginLockedAccount(t *testing.T) {
	m, store := newManager(t)
	registerParent(t, m)
	m.Logout(context.Background())
	store.LockAccount("dana@example.com")

	_, err := m.Login(context.Background(), "dana@example.com", "secret1")
	if !errors.Is(err, identity.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestMalformedEmailRejected(t *testing.T) {
	m, _ := newManager(t)

	for _, email := range []string{"", "dana", "@example.com", "dana@", "a@b@c"} {
		_, err := m.Login(context.Background(), email, "secret1")
		if !errors.Is(err, identity.ErrInvalidEmail) {
			t.Fatalf("login %q: expected ErrInvalidEmail, got %v", email, err)
		}
		_, err = m.Register(context.Background(), "Dana", email, "secret1", core.RoleParent, "")
		if !errors.Is(err, identity.ErrInvalidEmail) {
			t.Fatalf("register %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
	if m.Current() != nil {
		t.Fatalf("rejected email must not leave a session")
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Register(context.Background(), "Dana", "dana@example.com", "12345", core.RoleParent, "")
	if !errors.Is(err, ErrWeakCredential) {
		t.Fatalf("expected ErrWeakCredential, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	m, _ := newManager(t)
	registerParent(t, m)
	_, err := m.Register(context.Background(), "Other", "dana@example.com", "secret1", core.RoleParent, "")
	if !errors.Is(err, identity.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestRegisterChildLinksParent(t *testing.T) {
	m, store := newManager(t)
	parent := registerParent(t, m)

	child, err := m.Register(context.Background(), "Sam", "sam@example.com", "secret1", core.RoleChild, parent.ID)
	if err != nil {
		t.Fatalf("register child: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Fatalf("child.ParentID = %q", child.ParentID)
	}

	stored, err := store.GetAccount(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if len(stored.Children) != 1 || stored.Children[0] != child.ID {
		t.Fatalf("parent children = %v, want [%s]", stored.Children, child.ID)
	}

	// The freshly registered child is the current session.
	if cur := m.Current(); cur == nil || cur.ID != child.ID {
		t.Fatalf("current = %+v", cur)
	}
}

func TestRegisterChildRejectsNonParent(t *testing.T) {
	m, _ := newManager(t)
	parent := registerParent(t, m)
	child, _ := m.Register(context.Background(), "Sam", "sam@example.com", "secret1", core.RoleChild, parent.ID)

	_, err := m.Register(context.Background(), "Ali", "ali@example.com", "secret1", core.RoleChild, child.ID)
	if err == nil {
		t.Fatalf("binding a child to a non-parent must fail")
	}
}

func TestReconcileFamilyHealsDroppedLink(t *testing.T) {
	m, store := newManager(t)
	parent := registerParent(t, m)
	c1, _ := m.Register(context.Background(), "Sam", "sam@example.com", "secret1", core.RoleChild, parent.ID)
	c2, _ := m.Register(context.Background(), "Ali", "ali@example.com", "secret1", core.RoleChild, parent.ID)

	// Simulate the crash window: drop c2 from the stored list.
	children := []string{c1.ID}
	if err := store.UpdateAccount(context.Background(), parent.ID, core.AccountPatch{Children: &children}); err != nil {
		t.Fatalf("seed drift: %v", err)
	}

	if err := m.ReconcileFamily(context.Background(), parent.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, _ := store.GetAccount(context.Background(), parent.ID)
	if len(got.Children) != 2 || got.Children[0] != c1.ID || got.Children[1] != c2.ID {
		t.Fatalf("children = %v, want [%s %s]", got.Children, c1.ID, c2.ID)
	}
}

func TestLogoutClearsSessionAndBumpsGeneration(t *testing.T) {
	m, _ := newManager(t)
	registerParent(t, m)

	gen := m.Generation()
	m.Logout(context.Background())
	if m.Current() != nil {
		t.Fatalf("session must be cleared")
	}
	if m.Generation() == gen {
		t.Fatalf("generation must change on logout")
	}

	// Logout without a session is still fine.
	m.Logout(context.Background())
}

func TestUpdateProfile(t *testing.T) {
	m, store := newManager(t)
	parent := registerParent(t, m)

	name := "Dana R"
	if err := m.UpdateProfile(context.Background(), core.AccountPatch{Name: &name}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if cur := m.Current(); cur.Name != "Dana R" {
		t.Fatalf("in-memory name = %q", cur.Name)
	}
	stored, _ := store.GetAccount(context.Background(), parent.ID)
	if stored.Name != "Dana R" {
		t.Fatalf("stored name = %q", stored.Name)
	}

	// No session: no-op, no error.
	m.Logout(context.Background())
	if err := m.UpdateProfile(context.Background(), core.AccountPatch{Name: &name}); err != nil {
		t.Fatalf("no-session update should be a no-op: %v", err)
	}
}

func TestSubscribeObservesTransitions(t *testing.T) {
	m, _ := newManager(t)
	ch, cancel := m.Subscribe()
	defer cancel()

	registerParent(t, m)

	var sawLogin bool
	for done := false; !done; {
		select {
		case s := <-ch:
			if s.Account != nil {
				sawLogin = true
				done = true
			}
		default:
			done = true
		}
	}
	if !sawLogin {
		t.Fatalf("expected a state with a non-nil account after register")
	}

	m.Logout(context.Background())
	var last State
	for done := false; !done; {
		select {
		case s := <-ch:
			last = s
		default:
			done = true
		}
	}
	if last.Account != nil {
		t.Fatalf("expected nil account after logout, got %+v", last.Account)
	}
}

func TestRestore(t *testing.T) {
	m, _ := newManager(t)
	parent := registerParent(t, m)
	m.Logout(context.Background())

	got, err := m.Restore(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.ID != parent.ID || m.Current() == nil {
		t.Fatalf("restore did not set the session")
	}

	if _, err := m.Restore(context.Background(), "nope"); err == nil {
		t.Fatalf("restoring an unknown account must fail")
	}
}
