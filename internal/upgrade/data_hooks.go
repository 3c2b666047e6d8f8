package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DataHookFunc fills or rewrites rows after the SQL migration for its schema
// version has been applied. It must be safe to re-run if it fails part way.
type DataHookFunc func(ctx context.Context, db *sql.DB) error

type dataHook struct {
	version uint
	name    string
	fn      DataHookFunc
}

var registry []dataHook

// RegisterDataHook adds a hook for a schema version. Names are unique; hooks run
// ordered by version, then by registration order.
func RegisterDataHook(version uint, name string, fn DataHookFunc) {
	for _, h := range registry {
		if h.name == name {
			panic(fmt.Sprintf("upgrade: duplicate data hook %q", name))
		}
	}
	registry = append(registry, dataHook{version: version, name: name, fn: fn})
	sort.SliceStable(registry, func(i, j int) bool { return registry[i].version < registry[j].version })
}

// pendingFor returns the hooks not yet applied whose schema version is in place.
func pendingFor(hooks []dataHook, applied map[string]bool, schema uint) []dataHook {
	var out []dataHook
	for _, h := range hooks {
		if applied[h.name] || h.version > schema {
			continue
		}
		out = append(out, h)
	}
	return out
}

// PendingHooks lists the hooks RunPendingHooks would execute.
func PendingHooks(ctx context.Context, db *sql.DB) ([]string, error) {
	hooks, err := loadPending(ctx, db)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.name
	}
	return names, nil
}

// RunPendingHooks executes pending hooks in order and records each one in
// autoreply_data_hooks. It stops at the first failure.
func RunPendingHooks(ctx context.Context, db *sql.DB) (int, error) {
	hooks, err := loadPending(ctx, db)
	if err != nil {
		return 0, err
	}

	for i, h := range hooks {
		start := time.Now()
		slog.Info("upgrade.hook_start", "name", h.name, "schema_version", h.version)
		if err := h.fn(ctx, db); err != nil {
			return i, fmt.Errorf("data hook %q: %w", h.name, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO autoreply_data_hooks (name, version, applied_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (name) DO NOTHING`,
			h.name, h.version,
		); err != nil {
			return i, fmt.Errorf("record data hook %q: %w", h.name, err)
		}
		slog.Info("upgrade.hook_done", "name", h.name, "duration", time.Since(start))
	}
	return len(hooks), nil
}

func loadPending(ctx context.Context, db *sql.DB) ([]dataHook, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS autoreply_data_hooks (
			name       VARCHAR(255) PRIMARY KEY,
			version    INT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("ensure autoreply_data_hooks: %w", err)
	}

	var schema uint
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&schema); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schema version: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM autoreply_data_hooks")
	if err != nil {
		return nil, fmt.Errorf("query autoreply_data_hooks: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pendingFor(registry, applied, schema), nil
}
