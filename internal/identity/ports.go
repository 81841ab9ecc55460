// Package identity defines the account-directory contract the session
// manager authenticates against, plus the auth error taxonomy shared by
// its adapters.
package identity

import (
	"context"
	"errors"

	"famiglia/internal/core"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("too many failed attempts")
	ErrDuplicateAccount   = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
)

// Filter narrows QueryAccounts. Zero values mean "any".
type Filter struct {
	Role     core.Role
	ParentID string
	Email    string
}

// Store is the identity directory port. Adapters map their native failure
// modes onto the sentinel errors above; anything else surfaces wrapped, and
// callers classify it as unknown.
type Store interface {
	// Authenticate verifies credentials and returns the account id.
	Authenticate(ctx context.Context, email, password string) (string, error)

	// CreateAccount registers a new identity plus directory record and
	// returns the assigned account id.
	CreateAccount(ctx context.Context, account core.Account, password string) (string, error)

	GetAccount(ctx context.Context, id string) (core.Account, error)

	UpdateAccount(ctx context.Context, id string, patch core.AccountPatch) error

	// QueryAccounts lists directory records matching the filter. Used to
	// verify a candidate parent before binding a child, and by the family
	// reconciler to recompute children lists.
	QueryAccounts(ctx context.Context, filter Filter) ([]core.Account, error)
}
