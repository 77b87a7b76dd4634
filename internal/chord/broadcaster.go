package chord

// Ring update event types
const (
	EventNodeJoin           = "node_join"
	EventSuccessorChanged   = "successor_changed"
	EventPredecessorChanged = "predecessor_changed"
	EventStabilization      = "stabilization"
)

// RingUpdateBroadcaster is an interface for broadcasting ring updates.
// This allows the Node to notify external systems (like WebSocket clients)
// when the ring topology changes without creating circular dependencies.
type RingUpdateBroadcaster interface {
	// BroadcastRingUpdate sends a ring update notification.
	// The update parameter can be any data structure that will be serialized and sent.
	BroadcastRingUpdate(update any) error
}

// RingUpdateEvent represents a ring topology change event.
type RingUpdateEvent struct {
	Type      string    `json:"type"`               // see Event* constants
	NodeID    uint64    `json:"node_id"`            // ID of the node that triggered the event
	Timestamp int64     `json:"timestamp"`          // Unix timestamp
	Message   string    `json:"message"`            // Human-readable message
	Snapshot  *Snapshot `json:"snapshot,omitempty"` // Node state after the change
}
