package bus

import (
	"context"
	"testing"
	"time"
)

func TestBroadcastSubscribe(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("a", func(e Event) { got = append(got, "a:"+e.Name) })
	b.Subscribe("b", func(e Event) { got = append(got, "b:"+e.Name) })

	b.Broadcast(Event{Name: "x"})
	if len(got) != 2 {
		t.Fatalf("handlers called = %d, want 2", len(got))
	}

	b.Unsubscribe("a")
	got = nil
	b.Broadcast(Event{Name: "y"})
	if len(got) != 1 || got[0] != "b:y" {
		t.Errorf("after unsubscribe got %v, want [b:y]", got)
	}
}

func TestOutbound(t *testing.T) {
	b := New()
	b.PublishOutbound(OutboundMessage{SessionID: "s1", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok || msg.Content != "hi" {
		t.Fatalf("SubscribeOutbound = %+v, %v", msg, ok)
	}

	cancel()
	if _, ok := b.SubscribeOutbound(ctx); ok {
		t.Error("SubscribeOutbound on cancelled ctx should return false")
	}
}
