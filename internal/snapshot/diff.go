package snapshot

import "github.com/mattlee78/netstate/internal/nodetype"

// EventKind identifies which of the four diff outcomes (spec §4.2's
// table) a DiffEvent carries. This replaces the source's polymorphic
// callback interface with a plain sum type, per spec §9's design note.
type EventKind uint8

const (
	Created EventKind = iota
	Deleted
	Changed
	Same
)

// DiffEvent is emitted once per matched or unmatched node pair while
// diffing two snapshots.
type DiffEvent struct {
	Kind EventKind

	// New is set for Created, Changed, and Same.
	New *Node
	// Old is set for Deleted, Changed, and Same.
	Old *Node
	// ParentInNew is the Complex node New was found under, set only for
	// Created (spec: "node_created(new_node, parent_in_new)").
	ParentInNew *Node
}

// Sink receives diff events in tree-traversal order: a Complex node's
// Same/Changed event is always followed immediately by its children's
// events before its next sibling's.
type Sink func(DiffEvent)

// Diff performs the ordered-merge comparison described in spec §4.2: two
// snapshots' child lists are walked in lockstep (both already sorted
// ascending by id), recursing into matched Complex pairs. old may be nil,
// in which case every node in new is reported Created.
func Diff(old, latest *Snapshot, sink Sink) {
	var oldRoots []*Node
	if old != nil {
		oldRoots = old.Roots
	}
	diffChildren(oldRoots, latest.Roots, nil, sink)
}

// diffChildren runs the ordered merge over one pair of sibling lists.
// parentInNew is the Complex ancestor to report on Created events.
func diffChildren(oldList, newList []*Node, parentInNew *Node, sink Sink) {
	i, j := 0, 0
	for i < len(oldList) && j < len(newList) {
		o, n := oldList[i], newList[j]
		switch {
		case o.ID < n.ID:
			sink(DiffEvent{Kind: Deleted, Old: o})
			if o.Type == nodetype.Complex {
				diffChildren(o.Children, nil, nil, sink)
			}
			i++
		case n.ID < o.ID:
			sink(DiffEvent{Kind: Created, New: n, ParentInNew: parentInNew})
			if n.Type == nodetype.Complex {
				diffChildren(nil, n.Children, n, sink)
			}
			j++
		default:
			diffMatched(o, n, sink)
			i++
			j++
		}
	}
	for ; i < len(oldList); i++ {
		sink(DiffEvent{Kind: Deleted, Old: oldList[i]})
		if oldList[i].Type == nodetype.Complex {
			diffChildren(oldList[i].Children, nil, nil, sink)
		}
	}
	for ; j < len(newList); j++ {
		sink(DiffEvent{Kind: Created, New: newList[j], ParentInNew: parentInNew})
		if newList[j].Type == nodetype.Complex {
			diffChildren(nil, newList[j].Children, newList[j], sink)
		}
	}
}

// diffMatched compares one id present in both snapshots.
func diffMatched(o, n *Node, sink Sink) {
	if n.Type == nodetype.Complex {
		sink(DiffEvent{Kind: Same, Old: o, New: n})
		diffChildren(o.Children, n.Children, n, sink)
		return
	}
	if bytesChanged(o, n) {
		sink(DiffEvent{Kind: Changed, Old: o, New: n})
		return
	}
	sink(DiffEvent{Kind: Same, Old: o, New: n})
}

// bytesChanged reports whether a leaf pair should be treated as changed:
// either its storage bytes actually differ, or it carries the
// sticky-change flag from being a delta-type node that just changed
// (spec §4.2).
func bytesChanged(o, n *Node) bool {
	if !nodetype.BytesEqual(n.Type, o.Bytes, n.Bytes) {
		return true
	}
	return n.Type.IsDelta() && n.Sticky
}
