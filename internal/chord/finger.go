package chord

import (
	"fmt"

	"github.com/zde37/chordkv/pkg/hash"
)

// FingerQuery asks the node at Addr for the successor of Target so that
// slot Index can be refreshed.
type FingerQuery struct {
	Index  int
	Target uint64
	Addr   string
}

// FingerTable is the routing table of a node: M slots, numbered 1..M, where
// slot i points at the first known node at or after (owner + 2^(i-1)) mod 2^M.
// Every slot is always populated.
type FingerTable struct {
	owner   uint64
	ring    *hash.Ring
	entries []FingerEntry // entries[i-1] holds slot i
}

// NewFingerTable creates a finger table for owner with every slot pointing at initial.
func NewFingerTable(owner uint64, ring *hash.Ring, initial NodeAddress) *FingerTable {
	ft := &FingerTable{
		owner:   owner,
		ring:    ring,
		entries: make([]FingerEntry, ring.M()),
	}
	for i := range ft.entries {
		ft.entries[i].Start = ring.Target(owner, i+1)
	}
	ft.Fill(initial)
	return ft
}

// Len returns the number of slots (M).
func (ft *FingerTable) Len() int {
	return len(ft.entries)
}

// Fill points every slot at node.
func (ft *FingerTable) Fill(node NodeAddress) {
	for i := range ft.entries {
		ft.entries[i].Node = node
	}
}

// Update overwrites slot index.
func (ft *FingerTable) Update(index int, node NodeAddress) error {
	if index < 1 || index > len(ft.entries) {
		return fmt.Errorf("finger index %d out of range [1, %d]", index, len(ft.entries))
	}
	ft.entries[index-1].Node = node
	return nil
}

// Successor returns the node in slot 1.
func (ft *FingerTable) Successor() NodeAddress {
	return ft.entries[0].Node
}

// Entries returns a copy of all slots, slot 1 first.
func (ft *FingerTable) Entries() []FingerEntry {
	out := make([]FingerEntry, len(ft.entries))
	copy(out, ft.entries)
	return out
}

// Find returns the address of the closest node preceding target.
//
// Slots are scanned from M down to 1 and the first one whose node does not
// cover target, i.e. target is not in (owner, slot.ID], wins. A slot pointing
// at the owner itself covers the whole ring and is never chosen. When every
// slot covers target, slot 1 (the immediate successor, last one scanned) is
// returned: target then lies between the owner and its successor.
func (ft *FingerTable) Find(target uint64) string {
	for i := len(ft.entries) - 1; i >= 0; i-- {
		node := ft.entries[i].Node
		if !hash.InRange(target, ft.owner, node.ID) {
			return node.Addr
		}
	}
	return ft.entries[0].Node.Addr
}

// Refresh returns one query per slot. Every slot is re-resolved on every
// round, whether or not it looks stale.
func (ft *FingerTable) Refresh() []FingerQuery {
	queries := make([]FingerQuery, len(ft.entries))
	for i, e := range ft.entries {
		queries[i] = FingerQuery{
			Index:  i + 1,
			Target: e.Start,
			Addr:   e.Node.Addr,
		}
	}
	return queries
}

// IndexOf maps a refresh target back to its slot number.
func (ft *FingerTable) IndexOf(id uint64) (int, bool) {
	for i, e := range ft.entries {
		if e.Start == id {
			return i + 1, true
		}
	}
	return 0, false
}
