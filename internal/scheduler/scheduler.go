// Package scheduler delivers replies that a rule paces out over time. Timers fire
// into the outbound queue of the message bus; a Dispatcher drains that queue and
// hands each reply to a Deliverer.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

// Scheduler holds pending deferred replies.
type Scheduler struct {
	out    bus.OutboundRouter
	events bus.EventPublisher

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*time.Timer
	stopped bool

	afterFunc func(time.Duration, func()) *time.Timer
}

// New creates a Scheduler publishing to out. events may be nil.
func New(out bus.OutboundRouter, events bus.EventPublisher) *Scheduler {
	return &Scheduler{
		out:       out,
		events:    events,
		pending:   make(map[uint64]*time.Timer),
		afterFunc: time.AfterFunc,
	}
}

// Schedule publishes msg after delay. A non-positive delay publishes now.
// Calls after Stop are dropped.
func (s *Scheduler) Schedule(msg bus.OutboundMessage, delay time.Duration) {
	if delay <= 0 {
		s.publish(msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		slog.Warn("scheduler.dropped", "session_id", msg.SessionID, "rule_id", msg.RuleID)
		return
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = s.afterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if live {
			s.publish(msg)
		}
	})
	slog.Debug("scheduler.scheduled", "session_id", msg.SessionID, "rule_id", msg.RuleID, "delay", delay)
}

func (s *Scheduler) publish(msg bus.OutboundMessage) {
	s.out.PublishOutbound(msg)
	if s.events != nil {
		s.events.Broadcast(bus.Event{Name: protocol.EventMessageOutbound, Payload: msg})
	}
}

// Pending returns the number of replies waiting on a timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run blocks until ctx is done, then cancels every pending reply.
func (s *Scheduler) Run(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels pending replies and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	n := len(s.pending)
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
	if n > 0 {
		slog.Info("scheduler.stopped", "cancelled", n)
	}
}
