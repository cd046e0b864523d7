package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattlee78/netstate/internal/nodetype"
)

func leaf(id uint32, t nodetype.NodeType, v byte) *Node {
	return &Node{ID: id, Type: t, Bytes: []byte{v, 0, 0, 0}}
}

func TestDiffEmitsCreatedDeletedChangedSame(t *testing.T) {
	old := &Snapshot{Roots: []*Node{
		leaf(1, nodetype.Integer, 1),
		leaf(2, nodetype.Integer, 2),
		leaf(3, nodetype.Integer, 3),
	}}
	latest := &Snapshot{Roots: []*Node{
		leaf(1, nodetype.Integer, 1), // same
		leaf(2, nodetype.Integer, 9), // changed
		leaf(4, nodetype.Integer, 4), // created; 3 deleted
	}}

	var kinds []EventKind
	var ids []uint32
	Diff(old, latest, func(e DiffEvent) {
		kinds = append(kinds, e.Kind)
		if e.New != nil {
			ids = append(ids, e.New.ID)
		} else {
			ids = append(ids, e.Old.ID)
		}
	})

	assert.Equal(t, []EventKind{Same, Changed, Deleted, Created}, kinds)
	assert.Equal(t, []uint32{1, 2, 3, 4}, ids)
}

func TestDiffRecursesIntoComplexChildren(t *testing.T) {
	mkComplex := func(id uint32, children ...*Node) *Node {
		return &Node{ID: id, Type: nodetype.Complex, Children: children}
	}
	old := &Snapshot{Roots: []*Node{mkComplex(1, leaf(2, nodetype.Float, 1))}}
	latest := &Snapshot{Roots: []*Node{mkComplex(1, leaf(2, nodetype.Float, 2))}}

	var kinds []EventKind
	Diff(old, latest, func(e DiffEvent) { kinds = append(kinds, e.Kind) })
	assert.Equal(t, []EventKind{Same, Changed}, kinds)
}

func TestDiffRecursesIntoNewlyCreatedComplexChildren(t *testing.T) {
	mkComplex := func(id uint32, children ...*Node) *Node {
		return &Node{ID: id, Type: nodetype.Complex, Children: children}
	}
	latest := &Snapshot{Roots: []*Node{mkComplex(1, leaf(2, nodetype.Float, 1), leaf(3, nodetype.Float, 2))}}

	var kinds []EventKind
	var ids []uint32
	var parents []uint32
	Diff(nil, latest, func(e DiffEvent) {
		kinds = append(kinds, e.Kind)
		ids = append(ids, e.New.ID)
		if e.ParentInNew != nil {
			parents = append(parents, e.ParentInNew.ID)
		} else {
			parents = append(parents, 0)
		}
	})

	assert.Equal(t, []EventKind{Created, Created, Created}, kinds)
	assert.Equal(t, []uint32{1, 2, 3}, ids, "the Complex root and both its children must each emit a Created event")
	assert.Equal(t, []uint32{0, 1, 1}, parents, "children must report the Complex root as their parent")
}

func TestDiffRecursesIntoDeletedComplexChildren(t *testing.T) {
	mkComplex := func(id uint32, children ...*Node) *Node {
		return &Node{ID: id, Type: nodetype.Complex, Children: children}
	}
	old := &Snapshot{Roots: []*Node{mkComplex(1, leaf(2, nodetype.Float, 1), leaf(3, nodetype.Float, 2))}}
	latest := &Snapshot{}

	var kinds []EventKind
	var ids []uint32
	Diff(old, latest, func(e DiffEvent) {
		kinds = append(kinds, e.Kind)
		ids = append(ids, e.Old.ID)
	})

	assert.Equal(t, []EventKind{Deleted, Deleted, Deleted}, kinds)
	assert.Equal(t, []uint32{1, 2, 3}, ids, "the Complex root and both its children must each emit a Deleted event")
}

func TestDiffAgainstNilTreatsEveryNodeAsCreated(t *testing.T) {
	latest := &Snapshot{Roots: []*Node{leaf(1, nodetype.Integer, 1), leaf(2, nodetype.Integer, 2)}}
	var kinds []EventKind
	Diff(nil, latest, func(e DiffEvent) { kinds = append(kinds, e.Kind) })
	assert.Equal(t, []EventKind{Created, Created}, kinds)
}

func TestStickyDeltaLeafReemitsOnceAfterStabilizing(t *testing.T) {
	a := leaf(5, nodetype.Float3Delta, 7)
	b := leaf(5, nodetype.Float3Delta, 7)
	b.Sticky = true

	old := &Snapshot{Roots: []*Node{a}}
	latest := &Snapshot{Roots: []*Node{b}}

	var kinds []EventKind
	Diff(old, latest, func(e DiffEvent) { kinds = append(kinds, e.Kind) })
	assert.Equal(t, []EventKind{Changed}, kinds, "sticky flag forces Changed even though bytes are identical")
}

func TestBlobLeafAlwaysReportsChanged(t *testing.T) {
	a := leaf(9, nodetype.Blob, 1)
	b := leaf(9, nodetype.Blob, 1)

	var kinds []EventKind
	Diff(&Snapshot{Roots: []*Node{a}}, &Snapshot{Roots: []*Node{b}}, func(e DiffEvent) { kinds = append(kinds, e.Kind) })
	assert.Equal(t, []EventKind{Changed}, kinds)
}
