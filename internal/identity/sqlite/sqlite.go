// Package sqlite persists the identity directory in a local SQLite
// database. Password handling matches the in-memory adapter: a plain
// salted hash standing in for an external auth provider.
package sqlite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"famiglia/internal/core"
	"famiglia/internal/identity"
)

const maxFailedAttempts = 5

type Store struct {
	db *sql.DB
}

var _ identity.Store = (*Store)(nil)

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

func (s *Store) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = core.NormalizeEmail(email)

	var (
		id, salt, hash string
		failed         int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_salt, password_hash, failed_attempts
		FROM accounts WHERE email = ?`, email).Scan(&id, &salt, &hash, &failed)
	if err == sql.ErrNoRows {
		return "", identity.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("lookup credentials: %w", err)
	}
	if failed >= maxFailedAttempts {
		return "", identity.ErrAccountLocked
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), hashPassword(password, saltBytes)) != 1 {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE accounts SET failed_attempts = failed_attempts + 1 WHERE id = ?", id); err != nil {
			return "", fmt.Errorf("record failed attempt: %w", err)
		}
		return "", identity.ErrInvalidCredentials
	}

	if failed > 0 {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE accounts SET failed_attempts = 0 WHERE id = ?", id); err != nil {
			return "", fmt.Errorf("reset failed attempts: %w", err)
		}
	}
	return id, nil
}

func (s *Store) CreateAccount(ctx context.Context, account core.Account, password string) (string, error) {
	account.Email = core.NormalizeEmail(account.Email)
	account.ID = uuid.NewString()

	salt := make([]byte, 16)
	rand.Read(salt)
	children, err := encodeChildren(account.Children)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, role, avatar, parent_id, children, password_salt, password_hash, failed_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		account.ID, account.Name, account.Email, string(account.Role), account.Avatar,
		account.ParentID, children,
		hex.EncodeToString(salt), string(hashPassword(password, salt)),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return "", identity.ErrDuplicateAccount
		}
		return "", fmt.Errorf("insert account: %w", err)
	}
	return account.ID, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, avatar, parent_id, children
		FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return core.Account{}, identity.ErrAccountNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id string, patch core.AccountPatch) error {
	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Avatar != nil {
		sets = append(sets, "avatar = ?")
		args = append(args, *patch.Avatar)
	}
	if patch.Children != nil {
		children, err := encodeChildren(*patch.Children)
		if err != nil {
			return err
		}
		sets = append(sets, "children = ?")
		args = append(args, children)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if affected == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

func (s *Store) QueryAccounts(ctx context.Context, filter identity.Filter) ([]core.Account, error) {
	query := `
		SELECT id, name, email, role, avatar, parent_id, children
		FROM accounts WHERE 1=1`
	var args []any
	if filter.Role != "" {
		query += " AND role = ?"
		args = append(args, string(filter.Role))
	}
	if filter.ParentID != "" {
		query += " AND parent_id = ?"
		args = append(args, filter.ParentID)
	}
	if filter.Email != "" {
		query += " AND email = ?"
		args = append(args, core.NormalizeEmail(filter.Email))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a        core.Account
		children string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.Avatar, &a.ParentID, &children); err != nil {
		return core.Account{}, err
	}
	decoded, err := decodeChildren(children)
	if err != nil {
		return core.Account{}, err
	}
	a.Children = decoded
	if a.Role == core.RoleParent && a.Children == nil {
		a.Children = []string{}
	}
	return a, nil
}

func encodeChildren(children []string) (string, error) {
	if children == nil {
		children = []string{}
	}
	raw, err := json.Marshal(children)
	if err != nil {
		return "", fmt.Errorf("encode children: %w", err)
	}
	return string(raw), nil
}

func decodeChildren(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var children []string
	if err := json.Unmarshal([]byte(raw), &children); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	return children, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func hashPassword(password string, salt []byte) []byte {
	h := sha256.Sum256(append([]byte(password), salt...))
	return []byte(hex.EncodeToString(h[:]))
}
