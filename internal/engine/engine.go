// Package engine is the message decision pipeline: override and trigger gates,
// then the automation, owner and normal rule tiers, reply selection, variable
// resolution and usage recording.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/cooldown"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/internal/variables"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// Scheduler delivers replies after a delay, outside the request/response cycle.
type Scheduler interface {
	Schedule(msg bus.OutboundMessage, delay time.Duration)
}

// Options are the runtime-tunable parts of the engine, swapped on config reload.
type Options struct {
	Owners      []string       // wildcard patterns of owner sender names
	AdminMarker string         // sender spec prefix marking an owner
	Location    *time.Location // timezone for dates and daily rollover
}

// Config configures a new Engine.
type Config struct {
	Stores       *store.Stores
	Events       bus.EventPublisher // optional
	Scheduler    Scheduler          // optional: deferred replies are dropped (and logged) without one
	Options      Options
	HistoryLimit int // 0 = store.DefaultHistoryLimit

	// Overridable for tests.
	Tracker  *cooldown.Tracker
	Resolver *variables.Resolver
	Now      func() time.Time
	IntN     func(n int) int
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Engine runs the decision pipeline. Safe for concurrent use; messages of the same
// session are processed one at a time.
type Engine struct {
	stores    *store.Stores
	events    bus.EventPublisher
	scheduler Scheduler
	opts      atomic.Pointer[Options]
	state     *State
	tracker   *cooldown.Tracker
	resolver  *variables.Resolver
	tracer    trace.Tracer

	now   func() time.Time
	intN  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Engine. Call Load before processing messages.
func New(cfg Config) *Engine {
	e := &Engine{
		stores:    cfg.Stores,
		events:    cfg.Events,
		scheduler: cfg.Scheduler,
		state:     newState(cfg.HistoryLimit),
		tracker:   cfg.Tracker,
		resolver:  cfg.Resolver,
		tracer:    otel.Tracer("github.com/nextlevelbuilder/autoreply/internal/engine"),
		now:       cfg.Now,
		intN:      cfg.IntN,
		sleep:     cfg.Sleep,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.tracker == nil {
		e.tracker = cooldown.NewWithClock(e.now)
	}
	if e.resolver == nil {
		e.resolver = variables.NewResolver()
	}
	if e.intN == nil {
		e.intN = rand.IntN
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}
	e.UpdateOptions(cfg.Options)
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateOptions swaps the runtime options (config hot reload).
func (e *Engine) UpdateOptions(o Options) {
	if o.AdminMarker == "" {
		o.AdminMarker = DefaultAdminMarker
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	e.opts.Store(&o)
}

func (e *Engine) options() *Options { return e.opts.Load() }

// Load reads the complete engine state: the snapshot (see Reload) plus welcome
// state, global stats and history.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}

	logs, err := e.stores.Welcome.ListWelcomeLogs(ctx)
	if err != nil {
		return fmt.Errorf("load welcome logs: %w", err)
	}
	users, err := e.stores.Welcome.ListWelcomedUsers(ctx)
	if err != nil {
		return fmt.Errorf("load welcomed users: %w", err)
	}
	global, err := e.stores.Stats.GetGlobalStats(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load global stats: %w", err)
	}
	history, err := e.stores.History.ListHistory(ctx, e.state.historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range logs {
		s.welcomeLogs[k] = struct{}{}
	}
	for _, u := range users {
		s.welcomedUsers[u] = struct{}{}
	}
	if global != nil {
		s.global = cloneGlobal(*global)
	}
	s.history = history
	return nil
}

// Reload rebuilds the rule, variable and settings snapshot and the override lists.
// In-flight messages keep the snapshot they started with.
func (e *Engine) Reload(ctx context.Context) error {
	snap := &snapshot{variables: make(map[string]string)}

	for _, f := range []rules.Flavor{rules.FlavorAutomation, rules.FlavorOwner, rules.FlavorNormal} {
		recs, err := e.stores.Rules.List(ctx, f)
		if err != nil {
			return fmt.Errorf("load %s rules: %w", f, err)
		}
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Number < recs[j].Number })
		for _, rec := range recs {
			switch r := rec.Rule().(type) {
			case *rules.AutomationRule:
				snap.automation = append(snap.automation, r)
			case *rules.OwnerRule:
				snap.owner = append(snap.owner, r)
			case *rules.NormalRule:
				snap.normal = append(snap.normal, r)
			}
		}
	}

	vars, err := e.stores.Variables.ListVariables(ctx)
	if err != nil {
		return fmt.Errorf("load variables: %w", err)
	}
	for _, v := range vars {
		snap.variables[v.Name] = v.Value
	}

	settings, err := e.stores.Settings.GetSettings(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		snap.settings = store.DefaultSettings()
	case err != nil:
		return fmt.Errorf("load settings: %w", err)
	default:
		snap.settings = *settings
	}

	ignored, err := e.stores.Overrides.ListIgnored(ctx)
	if err != nil {
		return fmt.Errorf("load ignored users: %w", err)
	}
	specific, err := e.stores.Overrides.ListSpecific(ctx)
	if err != nil {
		return fmt.Errorf("load specific overrides: %w", err)
	}

	e.state.snap.Store(snap)
	e.state.automationEnabled.Store(snap.settings.AutomationEnabled)
	e.state.setOverrides(ignored, specific)

	slog.Debug("engine.reloaded",
		"automation_rules", len(snap.automation),
		"owner_rules", len(snap.owner),
		"normal_rules", len(snap.normal),
		"variables", len(snap.variables),
	)
	return nil
}

// Settings returns the settings of the current snapshot with the live automation flag.
func (e *Engine) Settings() store.Settings {
	s := e.state.snapshot().settings
	s.AutomationEnabled = e.state.automationEnabled.Load()
	return s
}

// Variables returns a copy of the static variable table.
func (e *Engine) Variables() map[string]string {
	src := e.state.snapshot().variables
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// AutomationEnabled reports whether the automation tier is evaluated.
func (e *Engine) AutomationEnabled() bool { return e.state.automationEnabled.Load() }

// SetAutomationEnabled toggles the automation tier and persists the flag.
func (e *Engine) SetAutomationEnabled(ctx context.Context, enabled bool) error {
	e.state.automationEnabled.Store(enabled)
	e.broadcast(protocol.EventAutomationChanged, map[string]interface{}{"enabled": enabled})
	return e.saveSettings(ctx)
}

func (e *Engine) saveSettings(ctx context.Context) error {
	s := e.Settings()
	if err := e.stores.Settings.SaveSettings(ctx, &s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// GlobalStats returns a copy of the aggregate counters.
func (e *Engine) GlobalStats() store.GlobalStats { return e.state.globalStats() }

// History returns the in-memory history, newest first.
func (e *Engine) History() []store.HistoryEntry { return e.state.recentHistory() }

// LastReplyTime returns when the sender last received a reply.
func (e *Engine) LastReplyTime(name string) (time.Time, bool) { return e.state.lastReply(name) }

// RolloverDaily resets the daily global counters when the date in the bot timezone
// changed. It reports whether a reset happened.
func (e *Engine) RolloverDaily(ctx context.Context) (bool, error) {
	g, changed := e.state.rollover(e.today())
	if !changed {
		return false, nil
	}
	if err := e.stores.Stats.SaveGlobalStats(ctx, &g); err != nil {
		return true, fmt.Errorf("save global stats: %w", err)
	}
	e.broadcast(protocol.EventStatsChanged, map[string]interface{}{"global": g})
	return true, nil
}

// PruneCooldowns drops expired cooldown entries.
func (e *Engine) PruneCooldowns() int { return e.tracker.Prune() }

func (e *Engine) today() string {
	return variables.DateKey(e.now(), e.options().Location)
}

func (e *Engine) broadcast(name string, payload interface{}) {
	if e.events == nil {
		return
	}
	e.events.Broadcast(bus.Event{Name: name, Payload: payload})
}
