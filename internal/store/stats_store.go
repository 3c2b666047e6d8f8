package store

import (
	"context"
	"time"
)

// MessageStats is the per-session usage counter row.
type MessageStats struct {
	SessionID       string         `json:"session_id"`
	SenderName      string         `json:"sender_name"`
	IsGroup         bool           `json:"is_group"`
	GroupName       string         `json:"group_name,omitempty"`
	ReceivedCount   int            `json:"received_count"`    // resets daily
	ReplyCount      int            `json:"reply_count"`
	TodayReplyCount int            `json:"today_reply_count"` // resets daily
	RuleReplyCounts map[string]int `json:"rule_reply_counts"` // keyed by rule ID
	LastActiveDate  string         `json:"last_active_date"`  // YYYY-MM-DD in the bot timezone
}

// GlobalStats aggregates usage across all sessions.
type GlobalStats struct {
	TotalUsers    []string `json:"total_users"`
	TodayUsers    []string `json:"today_users"`
	TotalMsgs     int      `json:"total_msgs"`
	TodayMsgs     int      `json:"today_msgs"`
	LastResetDate string   `json:"last_reset_date"`
}

// StatsStore persists usage counters.
// GetMessageStats returns ErrNotFound for unseen sessions.
type StatsStore interface {
	GetMessageStats(ctx context.Context, sessionID string) (*MessageStats, error)
	SaveMessageStats(ctx context.Context, s *MessageStats) error
	ListMessageStats(ctx context.Context, limit, offset int) ([]MessageStats, error)
	GetGlobalStats(ctx context.Context) (*GlobalStats, error)
	SaveGlobalStats(ctx context.Context, g *GlobalStats) error
}

// WelcomeStore persists which senders already received a WELCOME rule.
// The welcome log is context-aware (owner tier); the welcomed-users list is not
// (normal tier).
type WelcomeStore interface {
	ListWelcomeLogs(ctx context.Context) ([]string, error)
	AddWelcomeLog(ctx context.Context, key string) error
	ListWelcomedUsers(ctx context.Context) ([]string, error)
	AddWelcomedUser(ctx context.Context, name string) error
	// SaveUser records a first-time sender.
	SaveUser(ctx context.Context, name string, firstSeen time.Time) error
}

// HistoryEntry is one processed message and the reply it produced.
type HistoryEntry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SenderName  string    `json:"sender_name"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_reply"`
	RuleID      string    `json:"rule_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// DefaultHistoryLimit is the size of the history ring buffer.
const DefaultHistoryLimit = 50

// HistoryStore keeps the bounded message history, newest first.
type HistoryStore interface {
	AppendHistory(ctx context.Context, e HistoryEntry, keep int) error
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
}
