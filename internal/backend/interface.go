// Package backend assembles identity and store adapters from configuration.
package backend

import (
	"context"

	"famiglia/internal/identity"
	"famiglia/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the assembled adapters and optional cleanup function
type Result struct {
	Identity identity.Store
	Expenses store.ExpenseStore
	Budgets  store.BudgetStore
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Type represents the kind of backend
type Type string

const (
	MemoryBackend Type = "memory"
	SQLiteBackend Type = "sqlite"
	SheetsBackend Type = "sheets"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath   string
	IdentityDBPath string

	// Google Sheets specific (credentials come from the environment)
	GoogleSpreadsheetID string
}
