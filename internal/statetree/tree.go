// Package statetree implements the authoritative registry of replicable
// state described in spec §4.1: a tree of (id, type, storage, parent,
// siblings) nodes, addressed by integer id rather than by raw pointer
// (spec §9's re-architecture note). Node storage is modeled with a small
// Backing interface instead of {object_handle, offset, size} triples,
// which gives the same "owned vs. borrowed application memory" split
// without unsafe pointer arithmetic.
//
// Mirrors the teacher's pkg/metricstore/level.go shape (a mutex-guarded,
// lazily-grown tree reached by descending from a root) adapted from
// string-keyed selector paths to a flat arena keyed by uint32 id, because
// node ids here are globally unique rather than hierarchical.
package statetree

import (
	"fmt"
	"sort"

	"github.com/mattlee78/netstate/internal/nodetype"
	"github.com/mattlee78/netstate/internal/prediction"
	"github.com/mattlee78/netstate/internal/snapshot"
	"github.com/mattlee78/netstate/internal/vecmath"
	"github.com/mattlee78/netstate/internal/zone"
)

// Node is one entry in the tree's arena. Complex nodes carry a nil
// Backing and nil filter; every other type carries a Backing and,
// for Delta/Predict types, a filter that ReceiveNewValue feeds.
type Node struct {
	ID                uint32
	Type              nodetype.NodeType
	ParentID          uint32
	FirstChild        uint32
	NextSibling       uint32
	CreationCode      uint8
	CreationBlob      []byte
	IncludeInSnapshot bool

	Backing Backing
	filter  any // *prediction.LinearDelta | *prediction.ClientPredictVector | *prediction.ExpFilteredQuaternion

	lastSnapshotValue any  // value as of the most recent Snapshot() call, delta types only
	sticky             bool // see Tree.Snapshot's sticky-change bookkeeping
}

// Tree is the authoritative, single-owner node registry. All mutating
// methods are intended to be called from the one tick worker that owns
// this Tree (spec §5): Tree itself does no locking.
type Tree struct {
	nodes    map[uint32]*Node
	roots    uint32 // head of the root-level sibling list (ParentID == 0)
	isClient bool   // if true, UpdateNodeData ignores IncludeInSnapshot nodes
	nextSeq  uint32 // snapshot index counter
}

// New returns an empty Tree. isClient selects the client-side rule that
// updates to locally-authoritative (IncludeInSnapshot) nodes are ignored
// (spec §4.1).
func New(isClient bool) *Tree {
	return &Tree{nodes: make(map[uint32]*Node), isClient: isClient}
}

// Find returns the node with the given id, or nil if it does not exist.
func (t *Tree) Find(id uint32) *Node {
	return t.nodes[id]
}

// CreateNode registers a new node. Fails if id is zero, already exists,
// or parentID is non-zero and unknown (spec §4.1).
func (t *Tree) CreateNode(parentID, id uint32, typ nodetype.NodeType, backing Backing, creationCode uint8, creationBlob []byte, includeInSnapshot bool) error {
	if id == 0 {
		return fmt.Errorf("statetree: node id 0 is reserved")
	}
	if _, exists := t.nodes[id]; exists {
		return fmt.Errorf("statetree: duplicate node id %d", id)
	}
	var parent *Node
	if parentID != 0 {
		parent = t.nodes[parentID]
		if parent == nil {
			return fmt.Errorf("statetree: parent %d does not exist", parentID)
		}
	} else if typ != nodetype.Complex {
		return fmt.Errorf("statetree: only Complex nodes may have parent 0")
	}

	n := &Node{
		ID:                id,
		Type:              typ,
		ParentID:          parentID,
		CreationCode:      creationCode,
		CreationBlob:      creationBlob,
		IncludeInSnapshot: includeInSnapshot,
		Backing:           backing,
	}
	n.filter = newFilter(typ)
	t.nodes[id] = n

	if parent != nil {
		parent.FirstChild = insertAscending(t.nodes, parent.FirstChild, id)
	} else {
		t.roots = insertAscending(t.nodes, t.roots, id)
	}
	return nil
}

// insertAscending inserts id into the singly linked sibling chain rooted
// at head, keeping it strictly ascending by id (spec §3's invariant), and
// returns the (possibly updated) head.
func insertAscending(nodes map[uint32]*Node, head uint32, id uint32) uint32 {
	if head == 0 || id < head {
		nodes[id].NextSibling = head
		return id
	}
	cur := nodes[head]
	for cur.NextSibling != 0 && cur.NextSibling < id {
		cur = nodes[cur.NextSibling]
	}
	nodes[id].NextSibling = cur.NextSibling
	cur.NextSibling = id
	return head
}

func removeFromChain(nodes map[uint32]*Node, head uint32, id uint32) uint32 {
	if head == id {
		return nodes[id].NextSibling
	}
	cur := nodes[head]
	for cur != nil && cur.NextSibling != id {
		cur = nodes[cur.NextSibling]
	}
	if cur != nil {
		cur.NextSibling = nodes[id].NextSibling
	}
	return head
}

// newFilter allocates the prediction filter appropriate to typ, or nil
// for types that carry no per-sample state.
func newFilter(typ nodetype.NodeType) any {
	switch typ {
	case nodetype.Float3Delta, nodetype.Float3AsHalf4Delta, nodetype.Float3AsQwordDelta:
		return prediction.NewLinearDeltaVec3()
	case nodetype.Float4AsHalf4Delta:
		return prediction.NewLinearDeltaQuat()
	case nodetype.PredictFloat3:
		return prediction.NewClientPredictVector()
	case nodetype.PredictQuaternion:
		return prediction.NewExpFilteredQuaternion()
	default:
		return nil
	}
}

// CreateNodeGroup enumerates obj's members and allocates a contiguous id
// range starting at startID: one Complex node for obj itself, then one
// leaf node per member (spec §4.1). Returns the next free id.
func (t *Tree) CreateNodeGroup(parentID, startID uint32, obj Replicable, creationCode uint8, creationBlob []byte) (uint32, error) {
	if err := t.CreateNode(parentID, startID, nodetype.Complex, nil, creationCode, creationBlob, false); err != nil {
		return 0, err
	}
	id := startID + 1
	for _, m := range obj.Members() {
		if err := t.CreateNode(startID, id, m.Type, m.Backing, 0, nil, m.IncludeInSnapshot); err != nil {
			return 0, err
		}
		id++
	}
	return id, nil
}

// BindTransform is a convenience binder for the common position+rotation
// pair (original NetworkTransform.h), wiring a Complex group node whose
// two children track pos/rot through the requested delta or predict
// variant instead of always being plain Float3/Float4.
func BindTransform(t *Tree, parentID, startID uint32, pos *vecmath.Vec3, rot *vecmath.Quat, posType, rotType nodetype.NodeType, includeInSnapshot bool) (uint32, error) {
	if err := t.CreateNode(parentID, startID, nodetype.Complex, nil, 0, nil, false); err != nil {
		return 0, err
	}
	if err := t.CreateNode(startID, startID+1, posType, BindVec3(pos), 0, nil, includeInSnapshot); err != nil {
		return 0, err
	}
	if err := t.CreateNode(startID, startID+2, rotType, BindVec4(rot), 0, nil, includeInSnapshot); err != nil {
		return 0, err
	}
	return startID + 3, nil
}

// UpdateNodeData decodes wire-format bytes into node id's expanded value.
// Unknown ids are ignored (spec: "peer may be ahead"). On a client tree,
// updates to IncludeInSnapshot nodes are ignored (the client owns those
// values authoritatively). Delta/Predict types additionally feed their
// filter via ReceiveNewValue, which is the event the prediction package
// uses to build interpolation/extrapolation state.
func (t *Tree) UpdateNodeData(id uint32, wire []byte, now int64, c prediction.Constants) error {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	if n.Type == nodetype.Complex {
		return nil
	}
	if t.isClient && n.IncludeInSnapshot {
		return nil
	}
	v, err := nodetype.DecodeLeaf(n.Type, wire)
	if err != nil {
		return err
	}
	if n.filter != nil {
		feedFilter(n.filter, n.Type, v, now, c)
	}
	if n.Backing != nil {
		n.Backing.Write(v)
	}
	return nil
}

func feedFilter(f any, typ nodetype.NodeType, v any, now int64, c prediction.Constants) {
	switch filt := f.(type) {
	case *prediction.LinearDelta:
		if typ == nodetype.Float4AsHalf4Delta {
			filt.ReceiveNewValueQuat(v.(vecmath.Quat), now)
		} else {
			filt.ReceiveNewValue(v.(vecmath.Vec3), now)
		}
	case *prediction.ClientPredictVector:
		filt.ReceiveNewValue(c, v.(vecmath.Vec3), now)
	case *prediction.ExpFilteredQuaternion:
		filt.ReceiveNewValue(v.(vecmath.Quat), now)
	}
}

// Sample returns the node's current value for local rendering: for
// Delta/Predict types this is the filter's interpolated/extrapolated
// estimate at now; for everything else it is the raw backing value.
func (t *Tree) Sample(id uint32, now int64, c prediction.Constants) (any, bool) {
	n := t.nodes[id]
	if n == nil {
		return nil, false
	}
	if n.filter != nil {
		switch filt := n.filter.(type) {
		case *prediction.LinearDelta:
			if n.Type == nodetype.Float4AsHalf4Delta {
				return filt.LerpQuat(c, now), true
			}
			return filt.Lerp(c, now), true
		case *prediction.ClientPredictVector:
			return filt.Predicted(c, now), true
		case *prediction.ExpFilteredQuaternion:
			return filt.Lerp(c, now), true
		}
	}
	if n.Backing == nil {
		return nil, false
	}
	return n.Backing.Read(), true
}

// DeleteSubtree removes id and every descendant from the tree.
func (t *Tree) DeleteSubtree(id uint32) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("statetree: node %d does not exist", id)
	}
	if n.ParentID != 0 {
		parent := t.nodes[n.ParentID]
		parent.FirstChild = removeFromChain(t.nodes, parent.FirstChild, id)
	} else {
		t.roots = removeFromChain(t.nodes, t.roots, id)
	}
	t.deleteRecursive(id)
	return nil
}

func (t *Tree) deleteRecursive(id uint32) {
	n := t.nodes[id]
	if n == nil {
		return
	}
	child := n.FirstChild
	for child != 0 {
		next := t.nodes[child].NextSibling
		t.deleteRecursive(child)
		child = next
	}
	delete(t.nodes, id)
}

// Snapshot walks the tree and produces an immutable, zone-backed copy
// (spec §4.2). For delta-type leaves it applies the sticky-change rule:
// a value that just changed is flagged sticky so the next snapshot
// re-emits it once more even if it is byte-identical, giving the
// receiver two distinct timestamps to derive velocity from.
func (t *Tree) Snapshot() (*snapshot.Snapshot, error) {
	z := zone.New()
	index := t.nextSeq
	t.nextSeq++

	var walk func(id uint32) (*snapshot.Node, error)
	walk = func(id uint32) (*snapshot.Node, error) {
		n := t.nodes[id]
		sn := &snapshot.Node{
			ID:                n.ID,
			Type:              n.Type,
			CreationCode:      n.CreationCode,
			IncludeInSnapshot: n.IncludeInSnapshot,
		}
		if n.CreationBlob != nil {
			sn.CreationBlob = z.Clone(n.CreationBlob)
		}
		if n.Type != nodetype.Complex && n.Backing != nil {
			v := n.Backing.Read()
			enc, err := nodetype.EncodeLeaf(n.Type, v, nil)
			if err != nil {
				return nil, fmt.Errorf("statetree: snapshot node %d: %w", id, err)
			}
			sn.Bytes = z.Clone(enc)
			if n.filter != nil {
				changed := n.lastSnapshotValue == nil || !valuesEqual(n.Type, n.lastSnapshotValue, v)
				sn.Sticky = changed || n.sticky
				n.sticky = changed
				n.lastSnapshotValue = v
			}
		}
		for childID := n.FirstChild; childID != 0; {
			child := t.nodes[childID]
			cn, err := walk(childID)
			if err != nil {
				return nil, err
			}
			sn.Children = append(sn.Children, cn)
			childID = child.NextSibling
		}
		return sn, nil
	}

	var roots []*snapshot.Node
	for id := t.roots; id != 0; {
		n := t.nodes[id]
		sn, err := walk(id)
		if err != nil {
			z.Release()
			return nil, err
		}
		roots = append(roots, sn)
		id = n.NextSibling
	}

	return snapshot.New(index, z, roots), nil
}

func valuesEqual(typ nodetype.NodeType, a, b any) bool {
	ea, err := nodetype.EncodeLeaf(typ, a, nil)
	if err != nil {
		return false
	}
	eb, err := nodetype.EncodeLeaf(typ, b, nil)
	if err != nil {
		return false
	}
	return nodetype.BytesEqual(typ, ea, eb)
}

// sortChildrenForTest is exposed only for tests that build trees out of
// order and want to assert the ascending-id invariant independent of
// insertion order.
func sortChildrenForTest(ids []uint32) []uint32 {
	out := append([]uint32(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
