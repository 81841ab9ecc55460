package backend

import (
	"context"
	"fmt"

	"famiglia/internal/config"
	idmem "famiglia/internal/identity/memory"
	idsqlite "famiglia/internal/identity/sqlite"
	"famiglia/internal/log"
	"famiglia/internal/store/google"
	storemem "famiglia/internal/store/memory"
	storesqlite "famiglia/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	backendType := Type(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	return Config{
		Type:                backendType,
		SQLiteDBPath:        appConfig.SQLiteDBPath,
		IdentityDBPath:      appConfig.IdentityDBPath,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
	}, nil
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(ctx)
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context) (*Result, error) {
	records := storemem.New()

	f.logger.InfoContext(ctx, "Initialized memory backend",
		log.FieldBackend, MemoryBackend.String())

	return &Result{
		Identity: idmem.New(),
		Expenses: records,
		Budgets:  records,
		Cleanup:  nil,
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*Result, error) {
	directory, err := idsqlite.New(config.IdentityDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite identity store: %w", err)
	}
	records, err := storesqlite.New(config.SQLiteDBPath)
	if err != nil {
		directory.Close()
		return nil, fmt.Errorf("failed to initialize SQLite record store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		log.FieldBackend, SQLiteBackend.String(),
		"db_path", config.SQLiteDBPath,
		"identity_db_path", config.IdentityDBPath)

	return &Result{
		Identity: directory,
		Expenses: records,
		Budgets:  records,
		Cleanup: func() error {
			storeErr := records.Close()
			if err := directory.Close(); err != nil {
				return err
			}
			return storeErr
		},
	}, nil
}

// createSheetsBackend keeps expenses and budgets in a spreadsheet. The
// identity directory stays in SQLite: credentials do not belong in a sheet
// the whole family can open.
func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*Result, error) {
	cli, err := google.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	directory, err := idsqlite.New(config.IdentityDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite identity store: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend",
		log.FieldBackend, SheetsBackend.String(),
		"spreadsheet_id", config.GoogleSpreadsheetID)

	return &Result{
		Identity: directory,
		Expenses: cli,
		Budgets:  cli,
		Cleanup:  directory.Close,
	}, nil
}
