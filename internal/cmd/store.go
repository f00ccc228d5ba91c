package cmd

import (
	"context"
	"fmt"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/core/store"
)

// openStore connects to the configured database and applies the schema.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// openConfiguredStore loads the layered config and opens its store.
func openConfiguredStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openStore(ctx, cfg.Store)
}
