package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// PGWelcomeStore implements store.WelcomeStore backed by Postgres.
type PGWelcomeStore struct {
	db *sql.DB
}

func NewPGWelcomeStore(db *sql.DB) *PGWelcomeStore {
	return &PGWelcomeStore{db: db}
}

func (s *PGWelcomeStore) ListWelcomeLogs(ctx context.Context) ([]string, error) {
	return s.listColumn(ctx, `SELECT key FROM welcome_logs ORDER BY created_at`)
}

func (s *PGWelcomeStore) AddWelcomeLog(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO welcome_logs (key, created_at) VALUES ($1, NOW()) ON CONFLICT (key) DO NOTHING`, key)
	return err
}

func (s *PGWelcomeStore) ListWelcomedUsers(ctx context.Context) ([]string, error) {
	return s.listColumn(ctx, `SELECT name FROM welcomed_users ORDER BY created_at`)
}

func (s *PGWelcomeStore) AddWelcomedUser(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO welcomed_users (name, created_at) VALUES ($1, NOW()) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

// SaveUser keeps the first-seen time of an existing user.
func (s *PGWelcomeStore) SaveUser(ctx context.Context, name string, firstSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, first_seen) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, name, firstSeen)
	return err
}

func (s *PGWelcomeStore) listColumn(ctx context.Context, q string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, q)
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

// PGHistoryStore implements store.HistoryStore backed by Postgres.
type PGHistoryStore struct {
	db *sql.DB
}

func NewPGHistoryStore(db *sql.DB) *PGHistoryStore {
	return &PGHistoryStore{db: db}
}

// AppendHistory inserts e and trims the table to the newest keep entries.
func (s *PGHistoryStore) AppendHistory(ctx context.Context, e store.HistoryEntry, keep int) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.SessionID, e.SenderName, e.UserMessage, e.BotReply, e.RuleID, e.Timestamp); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_history WHERE seq NOT IN
		 (SELECT seq FROM message_history ORDER BY seq DESC LIMIT $1)`, keep); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGHistoryStore) ListHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender_name, user_message, bot_reply, rule_id, created_at
		 FROM message_history ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.HistoryEntry
	for rows.Next() {
		var e store.HistoryEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SenderName, &e.UserMessage, &e.BotReply, &e.RuleID, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
