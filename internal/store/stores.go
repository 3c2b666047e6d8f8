package store

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Stores is the top-level container for all storage backends.
// Standalone mode backs every store with SQLite; managed mode with Postgres.
type Stores struct {
	Rules     RuleStore
	Variables VariableStore
	Settings  SettingsStore
	Overrides OverrideStore
	Stats     StatsStore
	Welcome   WelcomeStore
	History   HistoryStore

	// Close releases the underlying connection pool.
	Close func() error
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Mode        string // "standalone" or "managed"
	SQLitePath  string
	PostgresDSN string
}
