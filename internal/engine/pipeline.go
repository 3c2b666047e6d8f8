package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// ErrEmptySession is returned for inbound messages without a session ID.
var ErrEmptySession = errors.New("engine: empty session id")

var errNoScheduler = errors.New("no scheduler configured")

// Inbound is one message to decide on.
type Inbound struct {
	SessionID  string
	Message    string
	Sender     string    // raw sender spec
	ReceivedAt time.Time // zero = now
}

// DeferredReply is a reply handed to the Scheduler.
type DeferredReply struct {
	Text  string        `json:"text"`
	Delay time.Duration `json:"delay"`
}

// Decision is the outcome of a processed message. Replies are sent now, Deferred
// later; a nil Decision means no reply.
type Decision struct {
	Replies  []string        `json:"replies"`
	Deferred []DeferredReply `json:"deferred,omitempty"`
	RuleID   string          `json:"rule_id"`
}

// Gate rule IDs reported for trigger replies.
const (
	RuleIDMasterStop = "MASTER_STOP"
	RuleIDHide       = "HIDE"
	RuleIDUnhide     = "UNHIDE"
)

// request carries the per-message values every stage needs.
type request struct {
	in     Inbound
	sender Sender
	owner  bool
	snap   *snapshot
	opts   *Options
}

// Process runs the decision pipeline for one message. Errors are returned only for
// invalid input or cancellation during a reply delay; storage failures are logged.
func (e *Engine) Process(ctx context.Context, in Inbound) (*Decision, error) {
	if in.SessionID == "" {
		return nil, ErrEmptySession
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = e.now()
	}

	ctx, span := e.tracer.Start(ctx, "engine.process",
		trace.WithAttributes(attribute.String("session_id", in.SessionID)))
	defer span.End()

	d, wait := e.decide(ctx, in)
	if d != nil {
		span.SetAttributes(attribute.String("rule_id", d.RuleID), attribute.Int("replies", len(d.Replies)))
	}
	if wait > 0 {
		if err := e.sleep(ctx, wait); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	return d, nil
}

// decide runs stages 1-12 under the session lock. The reply delay is returned to the
// caller so the lock is not held while sleeping.
func (e *Engine) decide(ctx context.Context, in Inbound) (*Decision, time.Duration) {
	unlock := e.state.lockSession(in.SessionID)
	defer unlock()

	opts := e.options()
	sender := ParseSender(in.Sender, opts.AdminMarker)
	req := &request{
		in:     in,
		sender: sender,
		owner:  sender.Admin || rules.MatchAny(opts.Owners, sender.Name),
		snap:   e.state.snapshot(),
		opts:   opts,
	}

	// 1. Specific-override gate.
	if !e.state.passesSpecific(sender.Name) {
		return nil, 0
	}
	// 2. Bot-online gate.
	if !req.snap.settings.BotOnline {
		return nil, 0
	}
	// 3-5. Master stop, unhide, hide.
	if d := e.runTriggers(ctx, req); d != nil {
		return d, 0
	}
	// 6. Ignored-sender gate.
	if e.state.isIgnoredIn(sender.Name, sender.Context()) {
		return nil, 0
	}
	// 7. Stats bootstrap.
	stats := e.bootstrapStats(ctx, req)

	// 8-10. Rule tiers.
	m := e.selectRule(ctx, req)
	if m == nil {
		return nil, 0
	}

	// 11. Reply materialization.
	plan := e.materialize(m.base)
	if len(plan.replies) == 0 {
		return nil, 0
	}
	e.commitMatch(ctx, req, m)

	// 12. Post-processing.
	return e.finish(ctx, req, m, plan, stats)
}

// runTriggers evaluates the master-stop, unhide and hide triggers in that order.
func (e *Engine) runTriggers(ctx context.Context, req *request) *Decision {
	settings := req.snap.settings
	msg := req.in.Message

	if ms := settings.MasterStop; ms.Enabled && rules.MatchTrigger(ms.Trigger, ms.MatchType, msg) {
		e.tracker.Clear()
		e.state.automationEnabled.Store(false)
		e.broadcast(protocol.EventAutomationChanged, map[string]interface{}{"enabled": false})
		if err := e.saveSettings(ctx); err != nil {
			e.logStoreError("engine.master_stop_save", req, err)
		}
		return e.triggerReply(req, ms.Reply, RuleIDMasterStop)
	}

	if un := settings.Unhide; un.Enabled && rules.MatchTrigger(un.Trigger, un.MatchType, msg) {
		remaining, removed := e.state.removeIgnored(req.sender.Name, req.sender.Context())
		if removed > 0 {
			if err := e.stores.Overrides.SaveIgnored(ctx, remaining); err != nil {
				e.logStoreError("engine.unhide_save", req, err)
			}
			return e.triggerReply(req, un.Reply, RuleIDUnhide)
		}
	}

	if h := settings.Hide; h.Enabled && rules.MatchTrigger(h.Trigger, h.MatchType, msg) {
		list, added := e.state.addIgnored(req.sender.Name, req.sender.Context())
		if added {
			if err := e.stores.Overrides.SaveIgnored(ctx, list); err != nil {
				e.logStoreError("engine.hide_save", req, err)
			}
		}
		return e.triggerReply(req, h.Reply, RuleIDHide)
	}
	return nil
}

// triggerReply picks one alternative of a gate reply at random and resolves it.
func (e *Engine) triggerReply(req *request, template, ruleID string) *Decision {
	d := &Decision{RuleID: ruleID}
	alts := rules.SplitReplies(template)
	if len(alts) == 0 {
		return d
	}
	text := alts[e.intN(len(alts))]
	d.Replies = []string{e.resolver.Resolve(text, newResolveContext(e, req, nil, ruleID, nil))}
	return d
}

// bootstrapStats loads or creates the session's stats row, rolls the daily counters,
// counts the message and persists both session and global counters.
func (e *Engine) bootstrapStats(ctx context.Context, req *request) *store.MessageStats {
	today := e.today()
	st, err := e.stores.Stats.GetMessageStats(ctx, req.in.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logStoreError("engine.stats_load", req, err)
		}
		st = &store.MessageStats{SessionID: req.in.SessionID}
	}
	if st.RuleReplyCounts == nil {
		st.RuleReplyCounts = make(map[string]int)
	}
	st.SenderName = req.sender.Name
	st.IsGroup = req.sender.IsGroup
	st.GroupName = req.sender.GroupName
	if st.LastActiveDate != today {
		st.ReceivedCount = 0
		st.TodayReplyCount = 0
		st.LastActiveDate = today
	}
	st.ReceivedCount++
	if err := e.stores.Stats.SaveMessageStats(ctx, st); err != nil {
		e.logStoreError("engine.stats_save", req, err)
	}

	g := e.state.countMessage(req.sender.Name, today)
	if err := e.stores.Stats.SaveGlobalStats(ctx, &g); err != nil {
		e.logStoreError("engine.global_stats_save", req, err)
	}
	e.broadcast(protocol.EventStatsChanged, map[string]interface{}{"global": g, "session": cloneStats(st)})
	return st
}

// isCommand is true for slash commands, the only messages the automation tier sees.
func isCommand(msg string) bool {
	return strings.HasPrefix(strings.TrimSpace(msg), "/")
}

func cloneStats(st *store.MessageStats) store.MessageStats {
	c := *st
	c.RuleReplyCounts = make(map[string]int, len(st.RuleReplyCounts))
	for k, v := range st.RuleReplyCounts {
		c.RuleReplyCounts[k] = v
	}
	return c
}
