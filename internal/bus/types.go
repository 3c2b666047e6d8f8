package bus

import "context"

// InboundMessage is a chat message delivered by the upstream provider webhook.
type InboundMessage struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Sender    string `json:"sender"` // raw sender spec: optional admin marker, optional "group: sender"
}

// OutboundMessage is a reply handed to the delivery side, either immediately or
// after a delay.
type OutboundMessage struct {
	SessionID string            `json:"session_id"`
	Content   string            `json:"content"`
	RuleID    string            `json:"rule_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"` // event name (e.g. "message.new", "stats.changed")
	Payload interface{} `json:"payload,omitempty"`
}

// Cache invalidation kind constants.
const (
	CacheKindRules     = "rules"
	CacheKindVariables = "variables"
	CacheKindSettings  = "settings"
	CacheKindOverrides = "overrides"
	CacheKindConfig    = "config"
)

// CacheInvalidatePayload signals cache layers to evict stale entries.
// Used with protocol.EventCacheInvalidate events.
type CacheInvalidatePayload struct {
	Kind string `json:"kind"` // CacheKind* constants
	Key  string `json:"key"`  // flavor, variable name, etc. Empty = invalidate all
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and the engine to decouple from concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// OutboundRouter carries replies from the scheduler to whoever delivers them.
type OutboundRouter interface {
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
