package store

import (
	"context"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
)

// TriggerSettings configures a gate trigger (master stop, hide, unhide).
type TriggerSettings struct {
	Enabled   bool       `json:"enabled"`
	Trigger   string     `json:"trigger"`
	Reply     string     `json:"reply"`
	MatchType rules.Type `json:"match_type,omitempty"` // EXACT (default), PATTERN or EXPERT
}

// PreventRepeatingSettings applies a fallback cooldown to rules without one.
type PreventRepeatingSettings struct {
	Enabled         bool `json:"enabled"`
	CooldownSeconds int  `json:"cooldown_seconds"`
}

// Settings is the process-wide bot configuration edited through the admin API.
type Settings struct {
	BotOnline         bool                     `json:"bot_online"`
	AutomationEnabled bool                     `json:"automation_enabled"`
	MasterStop        TriggerSettings          `json:"master_stop"`
	Hide              TriggerSettings          `json:"hide"`
	Unhide            TriggerSettings          `json:"unhide"`
	PreventRepeating  PreventRepeatingSettings `json:"prevent_repeating"`
}

// SettingsStore persists the settings bundle.
// GetSettings returns ErrNotFound before the first save.
type SettingsStore interface {
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
}

// IgnoredUser mutes a sender in one context. Both fields accept "*" wildcards.
type IgnoredUser struct {
	Name    string `json:"name"`
	Context string `json:"context"`
}

// OverrideStore persists the ignored list and the specific-override allowlist.
type OverrideStore interface {
	ListIgnored(ctx context.Context) ([]IgnoredUser, error)
	SaveIgnored(ctx context.Context, users []IgnoredUser) error
	ListSpecific(ctx context.Context) ([]string, error)
	SaveSpecific(ctx context.Context, patterns []string) error
}

// DefaultSettings is used until the first SaveSettings.
func DefaultSettings() Settings {
	return Settings{
		BotOnline:         true,
		AutomationEnabled: true,
		MasterStop: TriggerSettings{
			Enabled:   true,
			Trigger:   "/stopall",
			Reply:     "Automation stopped.",
			MatchType: rules.TypeExact,
		},
		Hide: TriggerSettings{
			Trigger:   "/hide",
			Reply:     "Okay %name%, I will stay quiet here.",
			MatchType: rules.TypeExact,
		},
		Unhide: TriggerSettings{
			Trigger:   "/unhide",
			Reply:     "Welcome back %name%!",
			MatchType: rules.TypeExact,
		},
	}
}
