package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// WelcomeStore implements store.WelcomeStore.
type WelcomeStore struct {
	db *sql.DB
}

func (s *WelcomeStore) ListWelcomeLogs(ctx context.Context) ([]string, error) {
	return listColumn(ctx, s.db, `SELECT key FROM welcome_logs ORDER BY created_at, key`)
}

func (s *WelcomeStore) AddWelcomeLog(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO welcome_logs (key, created_at) VALUES (?, ?)`, key, millis(time.Now()))
	return err
}

func (s *WelcomeStore) ListWelcomedUsers(ctx context.Context) ([]string, error) {
	return listColumn(ctx, s.db, `SELECT name FROM welcomed_users ORDER BY created_at, name`)
}

func (s *WelcomeStore) AddWelcomedUser(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO welcomed_users (name, created_at) VALUES (?, ?)`, name, millis(time.Now()))
	return err
}

func (s *WelcomeStore) SaveUser(ctx context.Context, name string, firstSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (name, first_seen) VALUES (?, ?)`, name, millis(firstSeen))
	return err
}

func listColumn(ctx context.Context, db *sql.DB, q string) ([]string, error) {
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// HistoryStore implements store.HistoryStore.
type HistoryStore struct {
	db *sql.DB
}

func (s *HistoryStore) AppendHistory(ctx context.Context, e store.HistoryEntry, keep int) error {
	if keep <= 0 {
		keep = store.DefaultHistoryLimit
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_history (id, session_id, sender_name, user_message, bot_reply, rule_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.SenderName, e.UserMessage, e.BotReply, e.RuleID, millis(e.Timestamp)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_history WHERE seq NOT IN
		 (SELECT seq FROM message_history ORDER BY seq DESC LIMIT ?)`, keep); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *HistoryStore) ListHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender_name, user_message, bot_reply, rule_id, created_at
		 FROM message_history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HistoryEntry
	for rows.Next() {
		var e store.HistoryEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SenderName, &e.UserMessage, &e.BotReply, &e.RuleID, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
