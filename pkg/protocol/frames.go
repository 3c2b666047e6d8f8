package protocol

// ProtocolVersion is the dashboard push protocol version, sent in the hello frame.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeHello = "hello"
	FrameTypeEvent = "event"
	FrameTypePing  = "ping"
	FrameTypePong  = "pong"
)

// HelloFrame is the first frame a dashboard client receives.
type HelloFrame struct {
	Type     string `json:"type"`
	Protocol int    `json:"protocol"`
	ClientID string `json:"client_id"`
}

// EventFrame wraps a server-pushed event.
type EventFrame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	Seq     uint64      `json:"seq"`
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}, seq uint64) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: name, Payload: payload, Seq: seq}
}

// InternalEvent reports whether an event stays on the server bus and is never
// forwarded to WebSocket clients.
func InternalEvent(name string) bool {
	return name == EventCacheInvalidate
}
