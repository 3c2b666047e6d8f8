package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// PGStatsStore implements store.StatsStore backed by Postgres.
type PGStatsStore struct {
	db *sql.DB
}

func NewPGStatsStore(db *sql.DB) *PGStatsStore {
	return &PGStatsStore{db: db}
}

const statsSelectCols = `session_id, sender_name, is_group, group_name, received_count, reply_count,
	today_reply_count, rule_reply_counts, last_active_date`

func (s *PGStatsStore) GetMessageStats(ctx context.Context, sessionID string) (*store.MessageStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+statsSelectCols+` FROM message_stats WHERE session_id = $1`, sessionID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return st, err
}

func (s *PGStatsStore) SaveMessageStats(ctx context.Context, st *store.MessageStats) error {
	counts, err := json.Marshal(st.RuleReplyCounts)
	if err != nil {
		return fmt.Errorf("encode rule reply counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO message_stats (session_id, sender_name, is_group, group_name, received_count,
		 reply_count, today_reply_count, rule_reply_counts, last_active_date, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (session_id) DO UPDATE SET
		   sender_name = EXCLUDED.sender_name,
		   is_group = EXCLUDED.is_group,
		   group_name = EXCLUDED.group_name,
		   received_count = EXCLUDED.received_count,
		   reply_count = EXCLUDED.reply_count,
		   today_reply_count = EXCLUDED.today_reply_count,
		   rule_reply_counts = EXCLUDED.rule_reply_counts,
		   last_active_date = EXCLUDED.last_active_date,
		   updated_at = EXCLUDED.updated_at`,
		st.SessionID, st.SenderName, st.IsGroup, st.GroupName, st.ReceivedCount,
		st.ReplyCount, st.TodayReplyCount, counts, st.LastActiveDate)
	return err
}

func (s *PGStatsStore) ListMessageStats(ctx context.Context, limit, offset int) ([]store.MessageStats, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statsSelectCols+` FROM message_stats ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MessageStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *PGStatsStore) GetGlobalStats(ctx context.Context) (*store.GlobalStats, error) {
	var g store.GlobalStats
	err := s.db.QueryRowContext(ctx,
		`SELECT total_users, today_users, total_msgs, today_msgs, last_reset_date FROM global_stats WHERE id = 1`).
		Scan(pq.Array(&g.TotalUsers), pq.Array(&g.TodayUsers), &g.TotalMsgs, &g.TodayMsgs, &g.LastResetDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PGStatsStore) SaveGlobalStats(ctx context.Context, g *store.GlobalStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO global_stats (id, total_users, today_users, total_msgs, today_msgs, last_reset_date)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   total_users = EXCLUDED.total_users,
		   today_users = EXCLUDED.today_users,
		   total_msgs = EXCLUDED.total_msgs,
		   today_msgs = EXCLUDED.today_msgs,
		   last_reset_date = EXCLUDED.last_reset_date`,
		pq.Array(nonNil(g.TotalUsers)), pq.Array(nonNil(g.TodayUsers)), g.TotalMsgs, g.TodayMsgs, g.LastResetDate)
	return err
}

func scanStats(row rowScanner) (*store.MessageStats, error) {
	var st store.MessageStats
	var counts []byte
	err := row.Scan(&st.SessionID, &st.SenderName, &st.IsGroup, &st.GroupName, &st.ReceivedCount,
		&st.ReplyCount, &st.TodayReplyCount, &counts, &st.LastActiveDate)
	if err != nil {
		return nil, err
	}
	st.RuleReplyCounts = make(map[string]int)
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &st.RuleReplyCounts); err != nil {
			return nil, fmt.Errorf("decode rule reply counts: %w", err)
		}
	}
	return &st, nil
}
