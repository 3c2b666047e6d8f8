package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// VariableStore implements store.VariableStore.
type VariableStore struct {
	db *sql.DB
}

func (s *VariableStore) ListVariables(ctx context.Context) ([]store.Variable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM static_variables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Variable
	for rows.Next() {
		var v store.Variable
		if err := rows.Scan(&v.Name, &v.Value); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *VariableStore) SetVariable(ctx context.Context, v store.Variable) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO static_variables (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, v.Name, v.Value)
	return err
}

func (s *VariableStore) DeleteVariable(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM static_variables WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SettingsStore implements store.SettingsStore as one JSON row.
type SettingsStore struct {
	db *sql.DB
}

func (s *SettingsStore) GetSettings(ctx context.Context) (*store.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bot_settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out store.Settings
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &out, nil
}

func (s *SettingsStore) SaveSettings(ctx context.Context, st *store.Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bot_settings (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	return err
}

// OverrideStore implements store.OverrideStore.
type OverrideStore struct {
	db *sql.DB
}

func (s *OverrideStore) ListIgnored(ctx context.Context) ([]store.IgnoredUser, error) {
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

func (s *OverrideStore) SaveIgnored(ctx context.Context, users []store.IgnoredUser) error {
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
			`INSERT OR IGNORE INTO ignored_users (name, context, position) VALUES (?, ?, ?)`,
			u.Name, u.Context, i); err != nil {
			return fmt.Errorf("insert ignored user: %w", err)
		}
	}
	return tx.Commit()
}

func (s *OverrideStore) ListSpecific(ctx context.Context) ([]string, error) {
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

func (s *OverrideStore) SaveSpecific(ctx context.Context, patterns []string) error {
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
			`INSERT OR IGNORE INTO specific_overrides (pattern, position) VALUES (?, ?)`, p, i); err != nil {
			return fmt.Errorf("insert specific override: %w", err)
		}
	}
	return tx.Commit()
}
