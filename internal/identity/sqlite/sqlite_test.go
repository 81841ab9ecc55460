package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"famiglia/internal/core"
	"famiglia/internal/identity"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createParent(t *testing.T, s *Store) string {
	t.Helper()
	id, err := s.CreateAccount(context.Background(), core.Account{
		Name:  "Dana",
		Email: "dana@example.com",
		Role:  core.RoleParent,
	}, "secret1")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	return id
}

func TestAuthenticateRoundTrip(t *testing.T) {
	s := newStore(t)
	id := createParent(t, s)

	got, err := s.Authenticate(context.Background(), "DANA@example.com", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != id {
		t.Fatalf("authenticated id = %q, want %q", got, id)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	s := newStore(t)
	createParent(t, s)

	_, err := s.Authenticate(context.Background(), "dana@example.com", "wrong")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateLocksAfterRepeatedFailures(t *testing.T) {
	s := newStore(t)
	createParent(t, s)
	ctx := context.Background()

	for i := 0; i < maxFailedAttempts; i++ {
		if _, err := s.Authenticate(ctx, "dana@example.com", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// Even the right password is rejected once locked.
	_, err := s.Authenticate(ctx, "dana@example.com", "secret1")
	if !errors.Is(err, identity.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAuthenticateResetsCounterOnSuccess(t *testing.T) {
	s := newStore(t)
	createParent(t, s)
	ctx := context.Background()

	for i := 0; i < maxFailedAttempts-1; i++ {
		s.Authenticate(ctx, "dana@example.com", "wrong")
	}
	if _, err := s.Authenticate(ctx, "dana@example.com", "secret1"); err != nil {
		t.Fatalf("authenticate before lock: %v", err)
	}
	// Counter reset: more failures are tolerated again.
	if _, err := s.Authenticate(ctx, "dana@example.com", "wrong"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after reset, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "dana@example.com", "secret1"); err != nil {
		t.Fatalf("authenticate after reset: %v", err)
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	s := newStore(t)
	createParent(t, s)

	_, err := s.CreateAccount(context.Background(), core.Account{
		Name:  "Other",
		Email: "Dana@Example.com",
		Role:  core.RoleParent,
	}, "secret2")
	if !errors.Is(err, identity.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestGetAccountUnknown(t *testing.T) {
	s := newStore(t)
	_, err := s.GetAccount(context.Background(), "nope")
	if !errors.Is(err, identity.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUpdateAccountChildren(t *testing.T) {
	s := newStore(t)
	id := createParent(t, s)
	ctx := context.Background()

	children := []string{"c1", "c2"}
	if err := s.UpdateAccount(ctx, id, core.AccountPatch{Children: &children}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Children) != 2 || got.Children[0] != "c1" || got.Children[1] != "c2" {
		t.Fatalf("children = %v", got.Children)
	}
}

func TestQueryAccountsByRoleAndParent(t *testing.T) {
	s := newStore(t)
	parentID := createParent(t, s)
	ctx := context.Background()

	childID, err := s.CreateAccount(ctx, core.Account{
		Name:     "Theo",
		Email:    "theo@example.com",
		Role:     core.RoleChild,
		ParentID: parentID,
	}, "secret1")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	parents, err := s.QueryAccounts(ctx, identity.Filter{Role: core.RoleParent})
	if err != nil {
		t.Fatalf("query parents: %v", err)
	}
	if len(parents) != 1 || parents[0].ID != parentID {
		t.Fatalf("parents = %+v", parents)
	}

	children, err := s.QueryAccounts(ctx, identity.Filter{ParentID: parentID})
	if err != nil {
		t.Fatalf("query children: %v", err)
	}
	if len(children) != 1 || children[0].ID != childID {
		t.Fatalf("children = %+v", children)
	}
}
