// Package sqlite backs every store with a single SQLite file (standalone mode).
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
  flavor TEXT NOT NULL,
  number INTEGER NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT 'EXACT',
  keywords TEXT NOT NULL DEFAULT '',
  replies_mode TEXT NOT NULL DEFAULT 'RANDOM',
  reply_template TEXT NOT NULL DEFAULT '',
  target_type TEXT NOT NULL DEFAULT '',
  target_users TEXT NOT NULL DEFAULT '[]',
  access_type TEXT NOT NULL DEFAULT '',
  defined_users TEXT NOT NULL DEFAULT '[]',
  cooldown_seconds INTEGER NOT NULL DEFAULT 0,
  min_delay_seconds INTEGER NOT NULL DEFAULT 0,
  max_delay_seconds INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (flavor, number)
);

CREATE TABLE IF NOT EXISTS static_variables (
  name TEXT PRIMARY KEY,
  value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS bot_settings (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ignored_users (
  name TEXT NOT NULL,
  context TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (name, context)
);

CREATE TABLE IF NOT EXISTS specific_overrides (
  pattern TEXT PRIMARY KEY,
  position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS message_stats (
  session_id TEXT PRIMARY KEY,
  sender_name TEXT NOT NULL DEFAULT '',
  is_group INTEGER NOT NULL DEFAULT 0,
  group_name TEXT NOT NULL DEFAULT '',
  received_count INTEGER NOT NULL DEFAULT 0,
  reply_count INTEGER NOT NULL DEFAULT 0,
  today_reply_count INTEGER NOT NULL DEFAULT 0,
  rule_reply_counts TEXT NOT NULL DEFAULT '{}',
  last_active_date TEXT NOT NULL DEFAULT '',
  updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS global_stats (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  total_users TEXT NOT NULL DEFAULT '[]',
  today_users TEXT NOT NULL DEFAULT '[]',
  total_msgs INTEGER NOT NULL DEFAULT 0,
  today_msgs INTEGER NOT NULL DEFAULT 0,
  last_reset_date TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS welcome_logs (
  key TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS welcomed_users (
  name TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  name TEXT PRIMARY KEY,
  first_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS message_history (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  session_id TEXT NOT NULL,
  sender_name TEXT NOT NULL DEFAULT '',
  user_message TEXT NOT NULL DEFAULT '',
  bot_reply TEXT NOT NULL DEFAULT '',
  rule_id TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
`

// Open opens (or creates) the SQLite database at path and returns stores backed by it.
func Open(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &store.Stores{
		Rules:     &RuleStore{db: db},
		Variables: &VariableStore{db: db},
		Settings:  &SettingsStore{db: db},
		Overrides: &OverrideStore{db: db},
		Stats:     &StatsStore{db: db},
		Welcome:   &WelcomeStore{db: db},
		History:   &HistoryStore{db: db},
		Close:     db.Close,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeList(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func decodeList(s string) ([]string, error) {
	var out []string
	if s == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
