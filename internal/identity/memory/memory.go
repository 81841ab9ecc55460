// Package memory provides an in-process identity directory used by tests
// and the default backend. It stands in for an external auth provider, so
// password handling is a plain salted hash rather than a real KDF.
package memory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	"famiglia/internal/core"
	"famiglia/internal/identity"
)

const maxFailedAttempts = 5

type record struct {
	account core.Account
	salt    []byte
	hash    []byte
	failed  int
}

type Store struct {
	mu      sync.Mutex
	byID    map[string]*record
	byEmail map[string]string
}

var _ identity.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		byID:    make(map[string]*record),
		byEmail: make(map[string]string),
	}
}

func (s *Store) Authenticate(_ context.Context, email, password string) (string, error) {
	email = core.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return "", identity.ErrInvalidCredentials
	}
	rec := s.byID[id]
	if rec.failed >= maxFailedAttempts {
		return "", identity.ErrAccountLocked
	}
	if subtle.ConstantTimeCompare(rec.hash, hashPassword(password, rec.salt)) != 1 {
		rec.failed++
		return "", identity.ErrInvalidCredentials
	}
	rec.failed = 0
	return id, nil
}

func (s *Store) CreateAccount(_ context.Context, account core.Account, password string) (string, error) {
	account.Email = core.NormalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[account.Email]; exists {
		return "", identity.ErrDuplicateAccount
	}

	account.ID = uuid.NewString()
	if account.Role == core.RoleParent && account.Children == nil {
		account.Children = []string{}
	}
	salt := make([]byte, 16)
	rand.Read(salt)
	s.byID[account.ID] = &record{
		account: account,
		salt:    salt,
		hash:    hashPassword(password, salt),
	}
	s.byEmail[account.Email] = account.ID
	return account.ID, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return core.Account{}, identity.ErrAccountNotFound
	}
	return copyAccount(rec.account), nil
}

func (s *Store) UpdateAccount(_ context.Context, id string, patch core.AccountPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return identity.ErrAccountNotFound
	}
	if patch.Name != nil {
		rec.account.Name = *patch.Name
	}
	if patch.Avatar != nil {
		rec.account.Avatar = *patch.Avatar
	}
	if patch.Children != nil {
		rec.account.Children = append([]string(nil), (*patch.Children)...)
	}
	return nil
}

func (s *Store) QueryAccounts(_ context.Context, filter identity.Filter) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Account
	for _, rec := range s.byID {
		a := rec.account
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.ParentID != "" && a.ParentID != filter.ParentID {
			continue
		}
		if filter.Email != "" && a.Email != core.NormalizeEmail(filter.Email) {
			continue
		}
		out = append(out, copyAccount(a))
	}
	return out, nil
}

// LockAccount trips the failed-attempt counter; test hook for the
// account-locked classification.
func (s *Store) LockAccount(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[core.NormalizeEmail(email)]; ok {
		s.byID[id].failed = maxFailedAttempts
	}
}

func hashPassword(password string, salt []byte) []byte {
	h := sha256.Sum256(append([]byte(password), salt...))
	return []byte(hex.EncodeToString(h[:]))
}

func copyAccount(a core.Account) core.Account {
	a.Children = append([]string(nil), a.Children...)
	return a
}
