package bus

import (
	"context"
	"log/slog"
	"sync"
)

const defaultOutboundBuffer = 256

// MessageBus fans events out to subscribers and queues outbound replies.
type MessageBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	outbound chan OutboundMessage
}

// New creates a MessageBus.
func New() *MessageBus {
	return &MessageBus{
		handlers: make(map[string]EventHandler),
		outbound: make(chan OutboundMessage, defaultOutboundBuffer),
	}
}

// Subscribe registers handler under id, replacing any previous handler with that id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	b.handlers[id] = handler
	b.mu.Unlock()
}

// Unsubscribe removes the handler registered under id.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

// Broadcast delivers event to every subscriber synchronously.
// Handlers must not block; slow consumers queue on their own side.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// PublishOutbound queues msg. When the queue is full the message is dropped and logged.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("bus.outbound_dropped", "session_id", msg.SessionID, "rule_id", msg.RuleID)
	}
}

// SubscribeOutbound blocks until a message is available or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
