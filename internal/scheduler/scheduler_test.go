package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/autoreply/internal/bus"
	"github.com/nextlevelbuilder/autoreply/internal/config"
	"github.com/nextlevelbuilder/autoreply/pkg/protocol"
)

func receive(t *testing.T, b *bus.MessageBus, within time.Duration) (bus.OutboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	return b.SubscribeOutbound(ctx)
}

func TestScheduleImmediate(t *testing.T) {
	b := bus.New()
	var events []string
	b.Subscribe("t", func(ev bus.Event) { events = append(events, ev.Name) })

	s := New(b, b)
	s.Schedule(bus.OutboundMessage{SessionID: "s1", Content: "now"}, 0)

	msg, ok := receive(t, b, time.Second)
	if !ok || msg.Content != "now" {
		t.Fatalf("outbound = %+v, %v", msg, ok)
	}
	if len(events) != 1 || events[0] != protocol.EventMessageOutbound {
		t.Errorf("events = %v, want [%s]", events, protocol.EventMessageOutbound)
	}
}

func TestScheduleDelayedInOrder(t *testing.T) {
	b := bus.New()
	s := New(b, nil)
	s.Schedule(bus.OutboundMessage{SessionID: "s1", Content: "second"}, 60*time.Millisecond)
	s.Schedule(bus.OutboundMessage{SessionID: "s1", Content: "first"}, 20*time.Millisecond)
	if n := s.Pending(); n != 2 {
		t.Errorf("Pending() = %d, want 2", n)
	}

	for _, want := range []string{"first", "second"} {
		msg, ok := receive(t, b, 2*time.Second)
		if !ok || msg.Content != want {
			t.Fatalf("outbound = %q, %v; want %q", msg.Content, ok, want)
		}
	}
	if n := s.Pending(); n != 0 {
		t.Errorf("Pending() after delivery = %d, want 0", n)
	}
}

func TestStopCancelsPending(t *testing.T) {
	b := bus.New()
	s := New(b, nil)
	s.Schedule(bus.OutboundMessage{Content: "never"}, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	s.Schedule(bus.OutboundMessage{Content: "late"}, time.Millisecond)
	if _, ok := receive(t, b, 100*time.Millisecond); ok {
		t.Error("reply delivered after Stop")
	}
}

func TestWithRetry(t *testing.T) {
	var calls int
	flaky := DelivererFunc(func(context.Context, bus.OutboundMessage) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err := WithRetry(3, time.Millisecond, flaky).Deliver(context.Background(), bus.OutboundMessage{}); err != nil {
		t.Errorf("Deliver() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	always := DelivererFunc(func(context.Context, bus.OutboundMessage) error { calls++; return errors.New("down") })
	if err := WithRetry(2, time.Millisecond, always).Deliver(context.Background(), bus.OutboundMessage{}); err == nil {
		t.Error("Deliver() = nil, want error")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDispatcherCallback(t *testing.T) {
	var (
		mu    sync.Mutex
		got   []string
		auths []string
		fails atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fails.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var msg bus.OutboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, msg.Content)
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
	}))
	defer srv.Close()

	b := bus.New()
	d := NewDispatcher(b, NewDeliverer(config.DeliveryConfig{
		CallbackURL: srv.URL, CallbackToken: "tok", RatePerSecond: 100, TimeoutSec: 2,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Run(ctx) }()

	b.PublishOutbound(bus.OutboundMessage{SessionID: "s1", Content: "a"})
	b.PublishOutbound(bus.OutboundMessage{SessionID: "s1", Content: "b"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("delivered = %v, want [a b]", got)
	}
	for _, a := range auths {
		if a != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", a, "Bearer tok")
		}
	}
}
