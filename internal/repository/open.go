package repository

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/FitScan/internal/config"
	"github.com/dharsanguruparan/FitScan/internal/database"
)

// Open builds the backend selected by cfg.Store. The returned func closes
// any connections it opened.
func Open(ctx context.Context, cfg *config.Config) (Scans, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPostgresScans(pool), pool.Close, nil
	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteScans(db), func() { _ = db.Close() }, nil
	case config.StoreMemory:
		return NewMemoryScans(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
