package chord

import (
	"context"
	"fmt"
	"time"

	"github.com/zde37/chordkv/pkg/hash"
)

// Snapshot is a read-only view of a node's routing state.
type Snapshot struct {
	ID          uint64        `json:"id"`
	Address     string        `json:"address"`
	State       string        `json:"state"`
	Successor   *NodeAddress  `json:"successor"`
	Predecessor *NodeAddress  `json:"predecessor"`
	Fingers     []FingerEntry `json:"fingers"`
	Keys        []string      `json:"keys"` // ring order
	TakenAt     time.Time     `json:"taken_at"`
}

// Snapshot returns the latest published view of the node.
func (n *Node) Snapshot() *Snapshot {
	return n.snapshot.Load()
}

// stabilize runs one stabilization step after our successor reported its
// predecessor (predecessorID may be nil).
func (n *Node) stabilize(predecessorID *uint64, predecessorAddr string) {
	n.stats.stabilizations.Add(1)

	self, succ := n.id, n.successor.ID
	if predecessorID != nil && *predecessorID != n.id && hash.Contains(&self, &succ, predecessorID) {
		n.setSuccessor(NodeAddress{ID: *predecessorID, Addr: predecessorAddr})
	}

	n.send(n.successor.Addr, NewNotify(n.address))

	for _, q := range n.fingers.Refresh() {
		n.send(q.Addr, NewLookup(q.Target, n.address.Addr))
	}

	n.handoffKeys()
}

// handoffKeys offers every key outside (predecessor, self] to its owner.
// Local copies are dropped once the owner answers (see handleKeyReply).
func (n *Node) handoffKeys() {
	if n.predecessor == nil {
		return
	}

	items, err := n.storage.Misplaced(context.Background(), n.predecessor.ID, n.id)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Key handoff skipped")
		return
	}
	for _, it := range items {
		n.send(n.nextHop(it.ID), NewPut(it.Key, it.Value, n.address.Addr))
	}
	if len(items) > 0 {
		n.logger.Debug().Int("keys", len(items)).Msg("Offered misplaced keys to their owners")
	}
}

// storeSnapshot builds and publishes a snapshot for concurrent readers.
func (n *Node) storeSnapshot() *Snapshot {
	snap := &Snapshot{
		ID:          n.id,
		Address:     n.address.Addr,
		State:       n.State().String(),
		Successor:   n.successor.Copy(),
		Predecessor: n.predecessor.Copy(),
		Fingers:     n.fingers.Entries(),
		Keys:        make([]string, 0, n.storage.Len()),
		TakenAt:     time.Now(),
	}
	if items, err := n.storage.Keys(context.Background()); err == nil {
		for _, it := range items {
			snap.Keys = append(snap.Keys, it.Key)
		}
	}
	n.snapshot.Store(snap)
	return snap
}

// publishSnapshot is the per-round observability hook.
func (n *Node) publishSnapshot() {
	snap := n.storeSnapshot()

	ev := n.logger.Debug().
		Str("state", snap.State).
		Int("keys", len(snap.Keys))
	if snap.Successor != nil {
		ev = ev.Uint64("successor", snap.Successor.ID)
	}
	if snap.Predecessor != nil {
		ev = ev.Uint64("predecessor", snap.Predecessor.ID)
	}
	ev.Msg("Ring state")

	n.emit(EventStabilization, fmt.Sprintf("node %d stabilizing", n.id), snap)
}

// broadcast publishes a fresh snapshot together with a ring event.
func (n *Node) broadcast(eventType, message string) {
	if n.broadcaster == nil {
		return
	}
	n.emit(eventType, message, n.storeSnapshot())
}

func (n *Node) emit(eventType, message string, snap *Snapshot) {
	if n.broadcaster == nil {
		return
	}
	event := RingUpdateEvent{
		Type:      eventType,
		NodeID:    n.id,
		Timestamp: time.Now().Unix(),
		Message:   message,
		Snapshot:  snap,
	}
	if err := n.broadcaster.BroadcastRingUpdate(event); err != nil {
		n.logger.Debug().Err(err).Str("event", eventType).Msg("Failed to broadcast ring update")
	}
}
