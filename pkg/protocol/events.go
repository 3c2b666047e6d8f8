package protocol

// WebSocket event names pushed from server to client.
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// Decision pipeline events.
	EventMessageNew   = "message.new"   // payload: history entry of a fired rule
	EventStatsChanged = "stats.changed" // payload: global + per-session counters

	// Deferred reply handed to the delivery side.
	EventMessageOutbound = "message.outbound"

	// Automation tier toggled by master stop or the admin API (payload: enabled).
	EventAutomationChanged = "automation.changed"

	// Cache invalidation events (internal, not forwarded to WS clients).
	EventCacheInvalidate = "cache.invalidate"
)
