package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/rules"
	"github.com/nextlevelbuilder/autoreply/internal/store"
	"github.com/nextlevelbuilder/autoreply/internal/variables"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// replyPlan is the unresolved output of a fired rule.
type replyPlan struct {
	replies []string // sent with the decision
	paced   []string // sent later, one delay apart
	delay   time.Duration
}

// materialize splits the rule template and applies the replies mode. In ALL mode with
// a delay, the first alternative goes out immediately and the rest are paced;
// otherwise the delay is waited out before replying.
func (e *Engine) materialize(b *rules.Base) replyPlan {
	alts := rules.SplitReplies(b.Template)
	if len(alts) == 0 {
		return replyPlan{}
	}
	delay := e.pickDelay(b.MinDelaySeconds, b.MaxDelaySeconds)

	switch b.RepliesMode {
	case rules.RepliesAll:
		if delay > 0 && len(alts) > 1 {
			return replyPlan{replies: alts[:1], paced: alts[1:], delay: delay}
		}
		return replyPlan{replies: alts, delay: delay}
	case rules.RepliesOne:
		return replyPlan{replies: alts[:1], delay: delay}
	default:
		return replyPlan{replies: []string{alts[e.intN(len(alts))]}, delay: delay}
	}
}

// pickDelay returns a fixed delay when min == max, otherwise a uniform pick in
// [min, max] seconds.
func (e *Engine) pickDelay(minSec, maxSec int) time.Duration {
	if maxSec < minSec {
		minSec, maxSec = maxSec, minSec
	}
	if maxSec <= 0 {
		return 0
	}
	secs := minSec
	if maxSec > minSec {
		secs += e.intN(maxSec - minSec + 1)
	}
	return time.Duration(secs) * time.Second
}

// finish resolves the chosen replies, records usage and hands paced replies to the
// scheduler. It returns the decision and how long to wait before answering.
func (e *Engine) finish(ctx context.Context, req *request, m *match, plan replyPlan, stats *store.MessageStats) (*Decision, time.Duration) {
	rc := newResolveContext(e, req, m.captures, m.id, stats)

	d := &Decision{RuleID: m.id}
	for _, r := range plan.replies {
		d.Replies = append(d.Replies, e.resolver.Resolve(r, rc))
	}
	for i, r := range plan.paced {
		d.Deferred = append(d.Deferred, DeferredReply{
			Text:  e.resolver.Resolve(r, rc),
			Delay: time.Duration(i+1) * plan.delay,
		})
	}

	e.record(ctx, req, m, d, stats)
	e.schedule(req, d)

	if len(plan.paced) > 0 {
		return d, 0
	}
	return d, plan.delay
}

// record updates the per-session counters, prepends a history entry and publishes
// the dashboard events.
func (e *Engine) record(ctx context.Context, req *request, m *match, d *Decision, stats *store.MessageStats) {
	stats.ReplyCount++
	stats.TodayReplyCount++
	stats.RuleReplyCounts[m.id]++
	if err := e.stores.Stats.SaveMessageStats(ctx, stats); err != nil {
		e.logStoreError("engine.stats_save", req, err)
	}

	texts := append([]string(nil), d.Replies...)
	for _, dr := range d.Deferred {
		texts = append(texts, dr.Text)
	}
	entry := store.HistoryEntry{
		ID:          uuid.NewString(),
		SessionID:   req.in.SessionID,
		SenderName:  req.sender.Name,
		UserMessage: req.in.Message,
		BotReply:    strings.Join(texts, "\n"),
		RuleID:      m.id,
		Timestamp:   e.now().UTC(),
	}
	e.state.recordReply(entry)
	if err := e.stores.History.AppendHistory(ctx, entry, e.state.historyLimit); err != nil {
		e.logStoreError("engine.history_save", req, err)
	}

	e.broadcast(protocol.EventMessageNew, entry)
	e.broadcast(protocol.EventStatsChanged, map[string]interface{}{"session": cloneStats(stats)})
}

func (e *Engine) schedule(req *request, d *Decision) {
	if len(d.Deferred) == 0 {
		return
	}
	if e.scheduler == nil {
		e.logStoreError("engine.deferred_dropped", req, errNoScheduler)
		return
	}
	for _, dr := range d.Deferred {
		e.scheduler.Schedule(bus.OutboundMessage{
			SessionID: req.in.SessionID,
			Content:   dr.Text,
			RuleID:    d.RuleID,
		}, dr.Delay)
	}
}

// newResolveContext builds the resolver context for a reply.
func newResolveContext(e *Engine, req *request, captures *rules.Captures, ruleID string, stats *store.MessageStats) *variables.Context {
	return &variables.Context{
		SenderName:    req.sender.Name,
		Message:       req.in.Message,
		ReceivedAt:    req.in.ReceivedAt,
		IsGroup:       req.sender.IsGroup,
		GroupName:     req.sender.GroupName,
		Captures:      captures,
		RuleID:        ruleID,
		TotalMessages: e.state.globalStats().TotalMsgs,
		Stats:         stats,
		History:       e.state.recentHistory(),
		Variables:     req.snap.variables,
		Location:      req.opts.Location,
		Now:           e.now,
		IntN:          e.intN,
	}
}
