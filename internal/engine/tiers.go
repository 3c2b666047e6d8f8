package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
)

// match is the rule that fired and what the matcher captured.
type match struct {
	base     *rules.Base
	id       string
	tier     rules.Flavor
	captures *rules.Captures
}

// selectRule walks the automation, owner and normal tiers and returns the first rule
// that passes its gates and matches. Nothing is armed or written until commitMatch.
func (e *Engine) selectRule(ctx context.Context, req *request) *match {
	_, span := e.tracer.Start(ctx, "engine.select_rule")
	defer span.End()

	var m *match
	if e.state.automationEnabled.Load() && isCommand(req.in.Message) {
		m = e.automationTier(req)
	}
	if m == nil && req.owner {
		m = e.ownerTier(req)
	}
	if m == nil && !req.owner {
		m = e.normalTier(req)
	}
	if m == nil {
		return nil
	}

	span.SetAttributes(
		attribute.String("rule_id", m.id),
		attribute.String("tier", string(m.tier)),
	)
	return m
}

// commitMatch arms the fired rule's cooldown and writes its welcome state. It runs
// only once the rule has produced at least one reply.
func (e *Engine) commitMatch(ctx context.Context, req *request, m *match) {
	e.tracker.Arm(req.in.SessionID, m.id, e.effectiveCooldown(req, m.base))
	e.commitWelcome(ctx, req, m)
	slog.Debug("engine.rule_fired", "session_id", req.in.SessionID, "rule_id", m.id, "tier", m.tier)
}

func (e *Engine) automationTier(req *request) *match {
	for _, r := range req.snap.automation {
		id := r.ID()
		if e.tracker.IsOnCooldown(req.in.SessionID, id) {
			continue
		}
		if !e.userCanRun(req, r.Access, r.DefinedUsers) {
			continue
		}
		in := e.input(req)
		if r.Type == rules.TypeWelcome {
			in.Welcomed = e.state.hasWelcomeLog(welcomeLogKey(req.sender, r.Number))
		}
		if res := rules.Match(&r.Base, in); res.Matched {
			return &match{base: &r.Base, id: id, tier: rules.FlavorAutomation, captures: res.Captures}
		}
	}
	return nil
}

func (e *Engine) ownerTier(req *request) *match {
	for _, r := range req.snap.owner {
		id := r.ID()
		if e.tracker.IsOnCooldown(req.in.SessionID, id) {
			continue
		}
		if !e.userCanRun(req, r.Access, nil) {
			continue
		}
		in := e.input(req)
		if r.Type == rules.TypeWelcome {
			in.Welcomed = e.state.hasWelcomeLog(welcomeLogKey(req.sender, r.Number))
		}
		if res := rules.Match(&r.Base, in); res.Matched {
			return &match{base: &r.Base, id: id, tier: rules.FlavorOwner, captures: res.Captures}
		}
	}
	return nil
}

func (e *Engine) normalTier(req *request) *match {
	// Senders muted in this context never reach this point, so the target check
	// alone decides user eligibility.
	for _, r := range req.snap.normal {
		id := r.ID()
		if e.tracker.IsOnCooldown(req.in.SessionID, id) {
			continue
		}
		if !targetMatches(r, req.sender.Name) {
			continue
		}
		in := e.input(req)
		if r.Type == rules.TypeWelcome {
			in.Welcomed = e.state.isWelcomed(req.sender.Name)
		}
		if res := rules.Match(&r.Base, in); res.Matched {
			return &match{base: &r.Base, id: id, tier: rules.FlavorNormal, captures: res.Captures}
		}
	}
	return nil
}

func (e *Engine) input(req *request) rules.Input {
	return rules.Input{Message: req.in.Message, IsGroup: req.sender.IsGroup}
}

// userCanRun applies an automation or owner rule's access type. "Ignored" means
// muted in any context: muted in this one never gets this far.
func (e *Engine) userCanRun(req *request, access rules.AccessType, defined []string) bool {
	name := req.sender.Name
	switch access {
	case rules.AccessAll, "":
		return true
	case rules.AccessOwner:
		return req.owner
	case rules.AccessOwnerIgnored:
		return req.owner || e.state.isIgnoredAnywhere(name)
	case rules.AccessOwnerDefined:
		return req.owner || rules.MatchAny(defined, name)
	case rules.AccessIgnored:
		return e.state.isIgnoredAnywhere(name)
	case rules.AccessDefined:
		return rules.MatchAny(defined, name)
	}
	return false
}

func targetMatches(r *rules.NormalRule, name string) bool {
	switch r.TargetType {
	case rules.TargetSpecific:
		return rules.MatchAny(r.TargetUsers, name)
	case rules.TargetIgnored:
		return !rules.MatchAny(r.TargetUsers, name)
	default:
		return true
	}
}

// effectiveCooldown is the rule's own cooldown, or the prevent-repeating fallback.
func (e *Engine) effectiveCooldown(req *request, b *rules.Base) int {
	if b.CooldownSeconds > 0 {
		return b.CooldownSeconds
	}
	if pr := req.snap.settings.PreventRepeating; pr.Enabled {
		return pr.CooldownSeconds
	}
	return 0
}

func welcomeLogKey(s Sender, number int) string {
	return fmt.Sprintf("%s-%d-%s", s.Name, number, s.Context())
}

// commitWelcome records that a WELCOME rule fired: the context-aware welcome log for
// automation and owner rules, the legacy welcomed-users list (plus a user record)
// for normal rules.
func (e *Engine) commitWelcome(ctx context.Context, req *request, m *match) {
	if m.base.Type != rules.TypeWelcome {
		return
	}
	name := req.sender.Name
	if m.tier == rules.FlavorNormal {
		e.state.addWelcomed(name)
		if err := e.stores.Welcome.AddWelcomedUser(ctx, name); err != nil {
			e.logStoreError("engine.welcomed_user_save", req, err)
		}
		if err := e.stores.Welcome.SaveUser(ctx, name, e.now()); err != nil {
			e.logStoreError("engine.user_save", req, err)
		}
		return
	}
	key := welcomeLogKey(req.sender, m.base.Number)
	e.state.addWelcomeLog(key)
	if err := e.stores.Welcome.AddWelcomeLog(ctx, key); err != nil {
		e.logStoreError("engine.welcome_log_save", req, err)
	}
}

func (e *Engine) logStoreError(event string, req *request, err error) {
	slog.Warn(event, "session_id", req.in.SessionID, "sender", req.sender.Name, "error", err)
}
