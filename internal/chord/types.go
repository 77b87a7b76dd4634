package chord

import (
	"fmt"
)

// NodeAddress represents a node in the Chord ring with its identifier and network address.
type NodeAddress struct {
	ID   uint64 `json:"id"`   // Node identifier in the Chord ring (0 to 2^M - 1)
	Addr string `json:"addr"` // Transport endpoint ("host:port")
}

// String returns a human-readable representation of the node address.
func (n *NodeAddress) String() string {
	if n == nil {
		return "NodeAddress{nil}"
	}
	return fmt.Sprintf("NodeAddress{ID: %d, Addr: %s}", n.ID, n.Addr)
}

// Equals checks if two NodeAddress instances are equal.
func (n *NodeAddress) Equals(other *NodeAddress) bool {
	if n == nil || other == nil {
		return n == nil && other == nil
	}
	return n.ID == other.ID && n.Addr == other.Addr
}

// Copy creates a copy of the NodeAddress.
func (n *NodeAddress) Copy() *NodeAddress {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// IDRef returns a pointer to the identifier, or nil for a nil address.
// It feeds hash.Contains, which treats unknown endpoints as outside every interval.
func (n *NodeAddress) IDRef() *uint64 {
	if n == nil {
		return nil
	}
	id := n.ID
	return &id
}

// FingerEntry represents an entry in the Chord finger table.
// Entry i tracks the successor of (n + 2^(i-1)) mod 2^M.
type FingerEntry struct {
	Start uint64      `json:"start"` // (n + 2^(i-1)) mod 2^M
	Node  NodeAddress `json:"node"`  // Node currently believed to succeed Start
}

// String returns a human-readable representation of the finger entry.
func (f FingerEntry) String() string {
	return fmt.Sprintf("FingerEntry{Start: %d, Node: %s}", f.Start, f.Node.String())
}
