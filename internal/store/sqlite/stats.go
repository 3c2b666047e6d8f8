package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/store"
)

// StatsStore implements store.StatsStore.
type StatsStore struct {
	db *sql.DB
}

const statsSelectCols = `session_id, sender_name, is_group, group_name, received_count, reply_count,
	today_reply_count, rule_reply_counts, last_active_date`

func (s *StatsStore) GetMessageStats(ctx context.Context, sessionID string) (*store.MessageStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+statsSelectCols+` FROM message_stats WHERE session_id = ?`, sessionID)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return st, err
}

func (s *StatsStore) SaveMessageStats(ctx context.Context, st *store.MessageStats) error {
	counts, err := json.Marshal(st.RuleReplyCounts)
	if err != nil {
		return fmt.Errorf("encode rule reply counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO message_stats (session_id, sender_name, is_group, group_name, received_count,
		 reply_count, today_reply_count, rule_reply_counts, last_active_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   sender_name = excluded.sender_name,
		   is_group = excluded.is_group,
		   group_name = excluded.group_name,
		   received_count = excluded.received_count,
		   reply_count = excluded.reply_count,
		   today_reply_count = excluded.today_reply_count,
		   rule_reply_counts = excluded.rule_reply_counts,
		   last_active_date = excluded.last_active_date,
		   updated_at = excluded.updated_at`,
		st.SessionID, st.SenderName, boolInt(st.IsGroup), st.GroupName, st.ReceivedCount,
		st.ReplyCount, st.TodayReplyCount, string(counts), st.LastActiveDate, millis(time.Now()))
	return err
}

func (s *StatsStore) ListMessageStats(ctx context.Context, limit, offset int) ([]store.MessageStats, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statsSelectCols+` FROM message_stats ORDER BY updated_at DESC, session_id LIMIT ? OFFSET ?`,
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

func (s *StatsStore) GetGlobalStats(ctx context.Context) (*store.GlobalStats, error) {
	var g store.GlobalStats
	var total, today string
	err := s.db.QueryRowContext(ctx,
		`SELECT total_users, today_users, total_msgs, today_msgs, last_reset_date FROM global_stats WHERE id = 1`).
		Scan(&total, &today, &g.TotalMsgs, &g.TodayMsgs, &g.LastResetDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if g.TotalUsers, err = decodeList(total); err != nil {
		return nil, fmt.Errorf("decode total users: %w", err)
	}
	if g.TodayUsers, err = decodeList(today); err != nil {
		return nil, fmt.Errorf("decode today users: %w", err)
	}
	return &g, nil
}

func (s *StatsStore) SaveGlobalStats(ctx context.Context, g *store.GlobalStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO global_stats (id, total_users, today_users, total_msgs, today_msgs, last_reset_date)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   total_users = excluded.total_users,
		   today_users = excluded.today_users,
		   total_msgs = excluded.total_msgs,
		   today_msgs = excluded.today_msgs,
		   last_reset_date = excluded.last_reset_date`,
		encodeList(g.TotalUsers), encodeList(g.TodayUsers), g.TotalMsgs, g.TodayMsgs, g.LastResetDate)
	return err
}

func scanStats(row rowScanner) (*store.MessageStats, error) {
	var st store.MessageStats
	var isGroup int
	var counts string
	err := row.Scan(&st.SessionID, &st.SenderName, &isGroup, &st.GroupName, &st.ReceivedCount,
		&st.ReplyCount, &st.TodayReplyCount, &counts, &st.LastActiveDate)
	if err != nil {
		return nil, err
	}
	st.IsGroup = isGroup != 0
	st.RuleReplyCounts = make(map[string]int)
	if counts != "" {
		if err := json.Unmarshal([]byte(counts), &st.RuleReplyCounts); err != nil {
			return nil, fmt.Errorf("decode rule reply counts: %w", err)
		}
	}
	return &st, nil
}
