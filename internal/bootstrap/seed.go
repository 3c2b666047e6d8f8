package bootstrap

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
)

//go:embed templates/*.json
var templateFS embed.FS

const (
	SettingsSeed = "settings"
	RulesSeed    = "rules"
	VariableSeed = "variables"
)

// starterVariables are static variables referenced by the starter rules.
var starterVariables = []store.Variable{
	{Name: "shop_url", Value: "https://example.com/prices"},
}

// StarterRules returns the embedded starter rule set.
func StarterRules() ([]rules.Record, error) {
	data, err := templateFS.ReadFile("templates/rules.json")
	if err != nil {
		return nil, err
	}
	var out []rules.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode starter rules: %w", err)
	}
	return out, nil
}

// Seed writes default settings and a starter rule set into an empty database.
// It never overwrites: settings are written only when none exist, and rules only
// for flavors that have none. Returns what was seeded.
func Seed(ctx context.Context, s *store.Stores) ([]string, error) {
	var created []string

	if _, err := s.Settings.GetSettings(ctx); errors.Is(err, store.ErrNotFound) {
		def := store.DefaultSettings()
		if err := s.Settings.SaveSettings(ctx, &def); err != nil {
			return created, fmt.Errorf("seed settings: %w", err)
		}
		created = append(created, SettingsSeed)
	} else if err != nil {
		return created, fmt.Errorf("load settings: %w", err)
	}

	starter, err := StarterRules()
	if err != nil {
		return created, err
	}
	empty := make(map[rules.Flavor]bool)
	for _, f := range []rules.Flavor{rules.FlavorNormal, rules.FlavorOwner, rules.FlavorAutomation} {
		list, err := s.Rules.List(ctx, f)
		if err != nil {
			return created, fmt.Errorf("list %s rules: %w", f, err)
		}
		empty[f] = len(list) == 0
	}
	seededRules := false
	for i := range starter {
		rec := starter[i]
		if !empty[rec.Flavor] {
			continue
		}
		if err := rec.Normalize(); err != nil {
			return created, fmt.Errorf("starter rule %q: %w", rec.Name, err)
		}
		rec.Number = 0
		if err := s.Rules.Create(ctx, &rec); err != nil {
			slog.Warn("bootstrap: failed to seed rule", "name", rec.Name, "error", err)
			continue
		}
		seededRules = true
	}
	if seededRules {
		created = append(created, RulesSeed)
	}

	vars, err := s.Variables.ListVariables(ctx)
	if err != nil {
		return created, fmt.Errorf("list variables: %w", err)
	}
	if len(vars) == 0 && seededRules {
		for _, v := range starterVariables {
			if err := s.Variables.SetVariable(ctx, v); err != nil {
				return created, fmt.Errorf("seed variable %s: %w", v.Name, err)
			}
		}
		created = append(created, VariableSeed)
	}

	if len(created) > 0 {
		slog.Info("bootstrap.seeded", "items", created)
	}
	return created, nil
}
