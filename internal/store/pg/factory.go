package pg

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewStoresFromDB(db), nil
}

// NewStoresFromDB wraps an already open pool.
func NewStoresFromDB(db *sql.DB) *store.Stores {
	return &store.Stores{
		Rules:     NewPGRuleStore(db),
		Variables: NewPGVariableStore(db),
		Settings:  NewPGSettingsStore(db),
		Overrides: NewPGOverrideStore(db),
		Stats:     NewPGStatsStore(db),
		Welcome:   NewPGWelcomeStore(db),
		History:   NewPGHistoryStore(db),
		Close:     db.Close,
	}
}
