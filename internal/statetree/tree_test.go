package statetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattlee78/netstate/internal/nodetype"
	"github.com/mattlee78/netstate/internal/prediction"
	"github.com/mattlee78/netstate/internal/vecmath"
)

func TestCreateNodeRejectsDuplicateAndMissingParent(t *testing.T) {
	tree := New(false)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	assert.Error(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	assert.Error(t, tree.CreateNode(99, 2, nodetype.Integer, BindInt32(new(int32)), 0, nil, false))
}

func TestFindRoundTripsThroughCreateAndDelete(t *testing.T) {
	tree := New(false)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float, BindFloat32(new(float32)), 0, nil, false))

	assert.NotNil(t, tree.Find(2))
	require.NoError(t, tree.DeleteSubtree(1))
	assert.Nil(t, tree.Find(1))
	assert.Nil(t, tree.Find(2))
}

func TestChildrenStayAscendingRegardlessOfInsertionOrder(t *testing.T) {
	tree := New(false)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	for _, id := range []uint32{30, 10, 20, 5} {
		require.NoError(t, tree.CreateNode(1, id, nodetype.Integer, BindInt32(new(int32)), 0, nil, false))
	}

	var ids []uint32
	for c := tree.Find(1).FirstChild; c != 0; c = tree.Find(c).NextSibling {
		ids = append(ids, c)
	}
	assert.Equal(t, []uint32{5, 10, 20, 30}, ids)
}

func TestUpdateNodeDataIgnoredOnClientForAuthoritativeNode(t *testing.T) {
	tree := New(true)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	var f float32 = 1
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float, BindFloat32(&f), 0, nil, true))

	wire, err := nodetype.EncodeLeaf(nodetype.Float, float32(9), nil)
	require.NoError(t, err)
	require.NoError(t, tree.UpdateNodeData(2, wire, 0, prediction.DefaultConstants()))

	assert.Equal(t, float32(1), f, "client-authoritative node must not be overwritten by peer updates")
}

func TestSnapshotEncodesCurrentLeafValue(t *testing.T) {
	tree := New(false)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	pos := vecmath.Vec3{X: 1, Y: 2, Z: 3}
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float3, BindVec3(&pos), 0, nil, true))

	snap, err := tree.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	n := snap.Find(2)
	require.NotNil(t, n)
	got, err := nodetype.DecodeLeaf(nodetype.Float3, n.Bytes)
	require.NoError(t, err)
	assert.Equal(t, pos, got)
}

func TestDeltaFilterLerpMatchesSeedScenario(t *testing.T) {
	tree := New(true)
	require.NoError(t, tree.CreateNode(0, 1, nodetype.Complex, nil, 0, nil, false))
	require.NoError(t, tree.CreateNode(1, 2, nodetype.Float3Delta, NewValueBacking(vecmath.Vec3{}), 0, nil, false))

	c := prediction.Constants{FrameTickLength: 10_000, Correction: 0.75, Smoothing: 0.25}
	wire0, _ := nodetype.EncodeLeaf(nodetype.Float3Delta, vecmath.Vec3{}, nil)
	require.NoError(t, tree.UpdateNodeData(2, wire0, 0, c))
	wire1, _ := nodetype.EncodeLeaf(nodetype.Float3Delta, vecmath.Vec3{X: 10}, nil)
	require.NoError(t, tree.UpdateNodeData(2, wire1, 10_000, c))

	v, ok := tree.Sample(2, 15_000, c)
	require.True(t, ok)
	got := v.(vecmath.Vec3)
	assert.InDelta(t, 15, got.X, 0.001)
	assert.InDelta(t, 0, got.Y, 0.001)
	assert.InDelta(t, 0, got.Z, 0.001)
}

func TestCreateNodeGroupAllocatesContiguousIDs(t *testing.T) {
	tree := New(false)
	obj := fakeReplicable{
		members: []Member{
			{Type: nodetype.Float, Backing: BindFloat32(new(float32))},
			{Type: nodetype.Integer, Backing: BindInt32(new(int32))},
		},
	}
	next, err := tree.CreateNodeGroup(0, 100, obj, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(103), next)
	assert.NotNil(t, tree.Find(100))
	assert.NotNil(t, tree.Find(101))
	assert.NotNil(t, tree.Find(102))
}

type fakeReplicable struct{ members []Member }

func (f fakeReplicable) Members() []Member { return f.members }
