package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// PGSettingsStore implements store.SettingsStore as a single JSONB row.
type PGSettingsStore struct {
	db *sql.DB
}

func NewPGSettingsStore(db *sql.DB) *PGSettingsStore {
	return &PGSettingsStore{db: db}
}

func (s *PGSettingsStore) GetSettings(ctx context.Context) (*store.Settings, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bot_settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out store.Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &out, nil
}

func (s *PGSettingsStore) SaveSettings(ctx context.Context, st *store.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bot_settings (id, data, updated_at) VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		data)
	return err
}

// PGOverrideStore implements store.OverrideStore backed by Postgres.
type PGOverrideStore struct {
	db *sql.DB
}

func NewPGOverrideStore(db *sql.DB) *PGOverrideStore {
	return &PGOverrideStore{db: db}
}

func (s *PGOverrideStore) ListIgnored(ctx context.Context) ([]store.IgnoredUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, context FROM ignored_users ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.IgnoredUser
	for rows.Next() {
		var u store.IgnoredUser
		if err := rows.Scan(&u.Name, &u.Context); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveIgnored replaces the whole list.
func (s *PGOverrideStore) SaveIgnored(ctx context.Context, users []store.IgnoredUser) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ignored_users`); err != nil {
		return err
	}
	for i, u := range users {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ignored_users (name, context, position) VALUES ($1, $2, $3)
			 ON CONFLICT (name, context) DO NOTHING`,
			u.Name, u.Context, i); err != nil {
			return fmt.Errorf("insert ignored user: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PGOverrideStore) ListSpecific(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern FROM specific_overrides ORDER BY position, pattern`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveSpecific replaces the whole allowlist.
func (s *PGOverrideStore) SaveSpecific(ctx context.Context, patterns []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM specific_overrides`); err != nil {
		return err
	}
	for i, p := range patterns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO specific_overrides (pattern, position) VALUES ($1, $2)
			 ON CONFLICT (pattern) DO NOTHING`,
			p, i); err != nil {
			return fmt.Errorf("insert specific override: %w", err)
		}
	}
	return tx.Commit()
}
