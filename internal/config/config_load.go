package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// EnvFile is loaded from the config directory before env overrides are applied.
const EnvFile = ".env.local"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:                "0.0.0.0",
			Port:                18790,
			WebhookRateLimitRPM: 120,
			MaxMessageChars:     8000,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.autoreply/autoreply.db",
		},
		Bot: BotConfig{
			AdminMarker:  "[admin]",
			Timezone:     "UTC",
			HistoryLimit: 50,
		},
		Delivery: DeliveryConfig{
			RatePerSecond: 5,
			TimeoutSec:    10,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "autoreply-gateway",
		},
		Cron: CronConfig{
			StatsRollover: "0 0 * * *",
			CooldownPrune: "*/5 * * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	loadEnvFile(filepath.Join(filepath.Dir(path), EnvFile))

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// loadEnvFile sets variables from a dotenv file without overriding the real environment.
func loadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("config.env_file_invalid", "path", path, "error", err)
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Gateway
	envStr("AUTOREPLY_HOST", &c.Gateway.Host)
	if v := os.Getenv("AUTOREPLY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("AUTOREPLY_GATEWAY_TOKEN", &c.Gateway.Token)
	envInt("AUTOREPLY_WEBHOOK_RATE_LIMIT_RPM", &c.Gateway.WebhookRateLimitRPM)

	// Database
	envStr("AUTOREPLY_MODE", &c.Database.Mode)
	envStr("AUTOREPLY_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("AUTOREPLY_POSTGRES_DSN", &c.Database.PostgresDSN)

	// Bot
	if v := os.Getenv("AUTOREPLY_OWNERS"); v != "" {
		var owners FlexibleStringSlice
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				owners = append(owners, o)
			}
		}
		c.Bot.Owners = owners
	}
	envStr("AUTOREPLY_ADMIN_MARKER", &c.Bot.AdminMarker)
	envStr("AUTOREPLY_TIMEZONE", &c.Bot.Timezone)

	// Delivery
	envStr("AUTOREPLY_DELIVERY_CALLBACK_URL", &c.Delivery.CallbackURL)
	envStr("AUTOREPLY_DELIVERY_TOKEN", &c.Delivery.CallbackToken)

	// Telemetry
	envStr("AUTOREPLY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AUTOREPLY_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AUTOREPLY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("AUTOREPLY_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("AUTOREPLY_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call this after modifying config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file. Secrets are never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with secret fields masked.
// Used by the admin API to avoid exposing secrets.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := &Config{
		Gateway:   c.Gateway,
		Database:  c.Database,
		Bot:       c.Bot,
		Delivery:  c.Delivery,
		Telemetry: c.Telemetry,
		Cron:      c.Cron,
	}
	maskNonEmpty(&cp.Gateway.Token)
	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.Delivery.CallbackToken)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = secretMask
		}
	}
	return cp
}

// StripSecrets zeros out all secret fields in the config.
// Used before saving to disk to ensure secrets never persist in config.json.
func (c *Config) StripSecrets() {
	c.Gateway.Token = ""
	c.Database.PostgresDSN = ""
	c.Delivery.CallbackToken = ""
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
