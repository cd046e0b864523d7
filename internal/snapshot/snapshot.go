// Package snapshot implements the immutable, reference-counted tree copy
// described in spec §4.2: an instantaneous value-copy of a state tree,
// plus the ordered-merge diff algorithm that compares two snapshots and
// emits created/deleted/changed/same events.
//
// Grounded on the teacher's pkg/metricstore/checkpoint.go, which mirrors
// a Level tree into an immutable on-disk representation the same way a
// Snapshot mirrors a statetree.Tree into zone-owned memory.
package snapshot

import (
	"sync/atomic"

	"github.com/mattlee78/netstate/internal/nodetype"
	"github.com/mattlee78/netstate/internal/zone"
)

// Node is a snapshot-local copy of one state-tree node's value. Bytes and
// CreationBlob are allocated out of the owning Snapshot's zone and must
// not be read after the Snapshot is released.
type Node struct {
	ID                uint32
	Type              nodetype.NodeType
	CreationCode      uint8
	CreationBlob      []byte
	IncludeInSnapshot bool

	// Bytes is the storage-format encoding of this node's leaf value,
	// nil for Complex nodes.
	Bytes []byte

	// Sticky marks a delta-type leaf whose value just changed (or was
	// still sticky last time), so Diff re-emits Changed for it even when
	// Bytes is byte-identical to the comparison snapshot (spec §4.2's
	// sticky-change optimization).
	Sticky bool

	// Children is kept strictly ascending by ID (spec §3's invariant);
	// Tree.Snapshot produces it in that order already.
	Children []*Node
}

// Snapshot is an immutable, reference-counted copy of a state tree's
// values at one tick (spec §3). The zero value is not usable; construct
// with New.
type Snapshot struct {
	Index uint32
	Roots []*Node

	zone *zone.Zone
	refs int32
}

// New wraps roots (already built in z) into a Snapshot with one
// outstanding reference.
func New(index uint32, z *zone.Zone, roots []*Node) *Snapshot {
	return &Snapshot{Index: index, Roots: roots, zone: z, refs: 1}
}

// Retain increments the reference count (spec §3: "the send queue shares
// snapshots with the producing tick (retain/release count)").
func (s *Snapshot) Retain() {
	atomic.AddInt32(&s.refs, 1)
}

// Release decrements the reference count, releasing the underlying zone
// (and therefore every []byte this Snapshot's Nodes point to) once it
// reaches zero.
func (s *Snapshot) Release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.zone.Release()
	}
}

// ZoneStats exposes the backing zone's allocator statistics (supplemented
// feature, see DESIGN.md).
func (s *Snapshot) ZoneStats() zone.Stats {
	return s.zone.Stats()
}

// Find performs a depth-first search for id, mainly useful in tests.
func (s *Snapshot) Find(id uint32) *Node {
	var walk func(nodes []*Node) *Node
	walk = func(nodes []*Node) *Node {
		for _, n := range nodes {
			if n.ID == id {
				return n
			}
			if found := walk(n.Children); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(s.Roots)
}
