package store

import (
	"context"
	"fmt"

	"faceattend/internal/config"
	"faceattend/internal/ledger"
)

// OpenLedger connects the configured ledger backend and applies migrations.
func OpenLedger(ctx context.Context, cfg config.App) (ledger.Store, error) {
	var s ledger.Store
	switch cfg.LedgerBackend {
	case "postgres":
		db, err := NewDB(ctx, cfg.DatabaseURL, Pool{MaxOpen: cfg.DBMaxOpenConns, MaxIdle: cfg.DBMaxIdleConns})
		if err != nil {
			return nil, err
		}
		s = ledger.NewPostgres(db)
	case "sqlite":
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s = ledger.NewSQLite(db)
	case "memory":
		s = ledger.NewMemory()
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate %s ledger: %w", cfg.LedgerBackend, err)
	}
	return s, nil
}
