package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/autoreply/internal/bootstrap"
	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
	"github.com/nextlevelbuilder/autoreply/internal/store/sqlite"
)

var errManagedNoDSN = errors.New("database.mode is managed but AUTOREPLY_POSTGRES_DSN is not set")

// openStores opens the configured backend. Managed mode gates on the schema
// version (auto-upgrading when allowed); standalone mode creates the SQLite file
// and seeds the starter data.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, error) {
	if cfg.Database.Mode == "managed" {
		if !cfg.IsManagedMode() {
			return nil, errManagedNoDSN
		}
		if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.PostgresDSN); err != nil {
			return nil, err
		}
		return pg.NewPGStores(store.StoreConfig{Mode: "managed", PostgresDSN: cfg.Database.PostgresDSN})
	}

	path := sqlitePath(cfg)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	stores, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	seeded, err := bootstrap.Seed(ctx, stores)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	if len(seeded) > 0 {
		slog.Info("seeded starter data", "items", seeded)
	}
	return stores, nil
}

func sqlitePath(cfg *config.Config) string {
	p := config.ExpandHome(cfg.Database.SQLitePath)
	if !filepath.IsAbs(p) {
		p, _ = filepath.Abs(p)
	}
	return p
}

// loadConfigAndStores is the common prologue of the offline subcommands.
func loadConfigAndStores(ctx context.Context) (*config.Config, *store.Stores, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	stores, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, stores, nil
}
