package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattlee78/netstate/internal/vecmath"
)

func TestLinearDeltaMatchesSeedScenario(t *testing.T) {
	d := NewLinearDeltaVec3()
	c := Constants{FrameTickLength: 10_000}
	d.ReceiveNewValue(vecmath.Vec3{}, 0)
	d.ReceiveNewValue(vecmath.Vec3{X: 10}, 10_000)

	got := d.Lerp(c, 15_000)
	assert.InDelta(t, 15, got.X, 0.001)
}

func TestLinearDeltaReturnsCurrentBeforeSecondSample(t *testing.T) {
	d := NewLinearDeltaVec3()
	d.ReceiveNewValue(vecmath.Vec3{X: 4}, 0)
	got := d.Lerp(Constants{FrameTickLength: 10_000}, 50_000)
	assert.Equal(t, vecmath.Vec3{X: 4}, got)
}

func TestLinearDeltaIsDeterministic(t *testing.T) {
	build := func() vecmath.Vec3 {
		d := NewLinearDeltaVec3()
		d.ReceiveNewValue(vecmath.Vec3{X: 1}, 0)
		d.ReceiveNewValue(vecmath.Vec3{X: 2}, 100)
		return d.Lerp(Constants{FrameTickLength: 100}, 150)
	}
	assert.Equal(t, build(), build())
}

func TestClientPredictVectorTransitionsThroughStates(t *testing.T) {
	p := NewClientPredictVector()
	c := DefaultConstants()
	p.ReceiveNewValue(c, vecmath.Vec3{X: 0}, 0)
	p.ReceiveNewValue(c, vecmath.Vec3{X: 2}, 100)
	p.ReceiveNewValue(c, vecmath.Vec3{X: 4}, 200)

	got := p.Predicted(c, 200)
	assert.InDelta(t, 3.4375, got.X, 0.01)
}

func TestExpFilteredVector3TracksTrend(t *testing.T) {
	f := NewExpFilteredVector3()
	c := Constants{FrameTickLength: 100}
	f.ReceiveNewValue(vecmath.Vec3{X: 0}, 0)
	f.ReceiveNewValue(vecmath.Vec3{X: 1}, 100)

	got := f.Lerp(c, 100)
	assert.InDelta(t, 1.9, got.X, 0.001)
}
