package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the autoreply gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Bot       BotConfig       `json:"bot"`
	Delivery  DeliveryConfig  `json:"delivery,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host                string   `json:"host"`
	Port                int      `json:"port"`
	Token               string   `json:"token,omitempty"`                  // bearer token for admin API and /ws
	AllowedOrigins      []string `json:"allowed_origins,omitempty"`        // WebSocket origin whitelist (empty = allow all)
	WebhookRateLimitRPM int      `json:"webhook_rate_limit_rpm,omitempty"` // per session (default 120, 0 = disabled)
	MaxMessageChars     int      `json:"max_message_chars,omitempty"`      // inbound message cap (default 8000)
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret), only from env AUTOREPLY_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"`        // "standalone" (default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // standalone database file
	PostgresDSN string `json:"-"`
}

// IsManagedMode returns true if the gateway stores its data in Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// BotConfig holds the engine options that can change without a restart.
type BotConfig struct {
	Owners       FlexibleStringSlice `json:"owners,omitempty"`        // wildcard sender names treated as owners
	AdminMarker  string              `json:"admin_marker,omitempty"`  // sender prefix that marks an owner (default "[admin]")
	Timezone     string              `json:"timezone,omitempty"`      // IANA zone for dates and daily counters (default "UTC")
	HistoryLimit int                 `json:"history_limit,omitempty"` // history ring size (default 50)
}

// Location resolves Timezone, falling back to UTC.
func (b BotConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DeliveryConfig configures deferred reply delivery.
type DeliveryConfig struct {
	CallbackURL   string  `json:"callback_url,omitempty"`    // POST target for deferred replies (empty = bus only)
	CallbackToken string  `json:"-"`                         // from env AUTOREPLY_DELIVERY_TOKEN only
	RatePerSecond float64 `json:"rate_per_second,omitempty"` // callback pacing (default 5)
	TimeoutSec    int     `json:"timeout_sec,omitempty"`     // callback HTTP timeout (default 10)
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, spans are exported to an OTLP-compatible backend (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection (set true for local dev)
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "autoreply-gateway")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// CronConfig holds the schedules of the periodic maintenance jobs (cron expressions).
type CronConfig struct {
	StatsRollover string `json:"stats_rollover,omitempty"` // reset today counters (default "0 0 * * *")
	CooldownPrune string `json:"cooldown_prune,omitempty"` // drop expired cooldowns (default "*/5 * * * *")
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	src.mu.RLock()
	defer src.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Bot = src.Bot
	c.Delivery = src.Delivery
	c.Telemetry = src.Telemetry
	c.Cron = src.Cron
}

// BotSnapshot returns the current bot section under the read lock.
func (c *Config) BotSnapshot() BotConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.Bot
	b.Owners = append(FlexibleStringSlice(nil), c.Bot.Owners...)
	return b
}
