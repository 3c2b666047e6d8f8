package upgrade

import (
	"context"
	"database/sql"

	"github.com/nextlevelbuilder/autoreply/internal/bootstrap"
	"github.com/nextlevelbuilder/autoreply/internal/store/pg"
)

// Data migration hooks are registered here.
// Add new hooks when a schema migration requires Go-based data transformation.
func init() {
	RegisterDataHook(1, "001_seed_default_settings", func(ctx context.Context, db *sql.DB) error {
		_, err := bootstrap.Seed(ctx, pg.NewStoresFromDB(db))
		return err
	})
}
