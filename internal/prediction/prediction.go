// Package prediction implements the client-side temporal filters from
// spec §4.4: linear-delta (and slerp) extrapolation for *Delta node types,
// exponential-trend filters, and the double-exponential ClientPredictVector
// predictor. All three are pure functions of their received-sample history
// plus a process-wide Constants value (spec: "established at start and not
// changed during a session") — no global mutable state, per spec §9's
// redesign note.
package prediction

import "github.com/mattlee78/netstate/internal/vecmath"

// Constants holds the process-wide prediction configuration (spec §4.4,
// closing paragraph). Ticks share whatever unit the caller's clock uses,
// as long as it is used consistently; FrameTickLength is the duration of
// one simulation frame in that unit.
type Constants struct {
	FrameTickLength int64
	Correction      float32
	Smoothing       float32
	PredictionBias  float32
	// MaxExtrapolationTicks caps how far LinearDelta's Lerp/LerpQuat
	// extrapolate past the last received sample: beyond it the factor is
	// held at its value at MaxExtrapolationTicks (spec's Open Question
	// about g_LerpThresholdTicks == perf_freq, i.e. one second).
	// ClientPredictVector.Predicted does not use it. Zero disables the clamp.
	MaxExtrapolationTicks int64
}

// DefaultConstants matches the original's g_Smoothing/g_Correction values
// and a one-second extrapolation clamp at a 1000-tick-per-second clock.
func DefaultConstants() Constants {
	return Constants{
		FrameTickLength:       100,
		Correction:            0.75,
		Smoothing:             0.25,
		PredictionBias:        0,
		MaxExtrapolationTicks: 1000,
	}
}

// lerpFactor computes the LinearDelta interpolation factor, t=1.0 meaning
// "at t_current", clamped so a stalled peer (no new sample for longer than
// MaxExtrapolationTicks) stops at the extrapolation reached at
// MaxExtrapolationTicks instead of sliding off to infinity (spec's Open
// Question on g_LerpThresholdTicks).
func lerpFactor(c Constants, tCurrent, now int64) float32 {
	if c.MaxExtrapolationTicks > 0 && now-tCurrent > c.MaxExtrapolationTicks {
		return 1 + float32(c.MaxExtrapolationTicks)/float32(c.FrameTickLength)
	}
	return float32(now-tCurrent)/float32(c.FrameTickLength) + 1
}

// LinearDelta is the "Float3Delta"/quaternion-variant filter: it stores
// exactly two samples and linearly (or spherically) extrapolates/
// interpolates between them (spec §4.4).
type LinearDelta struct {
	current, previous   vecmath.Vec3
	tCurrent, tPrevious int64
	hasCurrent           bool
	hasPrevious          bool
	currentQ, previousQ  vecmath.Quat
}

func NewLinearDeltaVec3() *LinearDelta { return &LinearDelta{} }

func NewLinearDeltaQuat() *LinearDelta { return &LinearDelta{currentQ: vecmath.Quat{W: 1}, previousQ: vecmath.Quat{W: 1}} }

// ReceiveNewValue shifts current -> previous and records v as the new
// current sample (spec: "shifts current→previous").
func (d *LinearDelta) ReceiveNewValue(v vecmath.Vec3, t int64) {
	if d.hasCurrent {
		d.previous, d.tPrevious = d.current, d.tCurrent
		d.hasPrevious = true
	}
	d.current, d.tCurrent = v, t
	d.hasCurrent = true
}

func (d *LinearDelta) ReceiveNewValueQuat(v vecmath.Quat, t int64) {
	if d.hasCurrent {
		d.previousQ, d.tPrevious = d.currentQ, d.tCurrent
		d.hasPrevious = true
	}
	d.currentQ, d.tCurrent = v, t
	d.hasCurrent = true
}

// Lerp returns current if no previous sample has been recorded yet,
// otherwise LERP(previous, current, 1 + (now-t_current)/frame_ticks) —
// exactly current at now == t_current, extrapolating past it once now
// exceeds t_current (spec §4.4).
func (d *LinearDelta) Lerp(c Constants, now int64) vecmath.Vec3 {
	if !d.hasPrevious {
		return d.current
	}
	return vecmath.LerpVec3(d.previous, d.current, lerpFactor(c, d.tCurrent, now))
}

func (d *LinearDelta) LerpQuat(c Constants, now int64) vecmath.Quat {
	if !d.hasPrevious {
		return d.currentQ
	}
	return vecmath.SlerpQuat(d.previousQ, d.currentQ, lerpFactor(c, d.tCurrent, now))
}

// ExpFilteredVector3 is the single-sample-ahead predictor with trend
// smoothing (spec §4.4).
type ExpFilteredVector3 struct {
	lastReceived, extrapolated, trend vecmath.Vec3
	tReceived, tExtrapolated           int64
	hasSample                          bool
}

func NewExpFilteredVector3() *ExpFilteredVector3 { return &ExpFilteredVector3{} }

func (f *ExpFilteredVector3) ReceiveNewValue(v vecmath.Vec3, t int64) {
	if !f.hasSample {
		f.lastReceived = v
		f.extrapolated = v
		f.tReceived = t
		f.tExtrapolated = t
		f.hasSample = true
		return
	}
	errv := v.Sub(f.extrapolated)
	rawTrend := v.Sub(f.lastReceived)
	f.trend = vecmath.LerpVec3(f.trend, rawTrend, 0.9).Add(errv)
	f.lastReceived = v
	f.tReceived = t
}

// Lerp advances the extrapolated value by trend * elapsed/frame_ticks and
// returns it.
func (f *ExpFilteredVector3) Lerp(c Constants, now int64) vecmath.Vec3 {
	if !f.hasSample {
		return vecmath.Vec3{}
	}
	elapsed := float32(now-f.tExtrapolated) / float32(c.FrameTickLength)
	f.extrapolated = f.extrapolated.Add(f.trend.Scale(elapsed))
	f.tExtrapolated = now
	return f.extrapolated
}

// ExpFilteredQuaternion mirrors ExpFilteredVector3 but composes trend and
// error in rotation space (spec §4.4).
type ExpFilteredQuaternion struct {
	lastReceived, extrapolated, trend vecmath.Quat
	tReceived, tExtrapolated           int64
	hasSample                          bool
}

func NewExpFilteredQuaternion() *ExpFilteredQuaternion {
	return &ExpFilteredQuaternion{
		lastReceived: vecmath.Quat{W: 1},
		extrapolated: vecmath.Quat{W: 1},
		trend:        vecmath.Quat{W: 1},
	}
}

func (f *ExpFilteredQuaternion) ReceiveNewValue(v vecmath.Quat, t int64) {
	if !f.hasSample {
		f.lastReceived = v
		f.extrapolated = v
		f.tReceived = t
		f.tExtrapolated = t
		f.hasSample = true
		return
	}
	errq := vecmath.QuatDelta(f.extrapolated, v)
	rawTrend := vecmath.QuatDelta(f.lastReceived, v)
	f.trend = vecmath.MulQuat(errq, vecmath.SlerpQuat(f.trend, rawTrend, 0.9))
	f.lastReceived = v
	f.tReceived = t
}

func (f *ExpFilteredQuaternion) Lerp(c Constants, now int64) vecmath.Quat {
	if !f.hasSample {
		return vecmath.Quat{W: 1}
	}
	elapsed := float32(now-f.tExtrapolated) / float32(c.FrameTickLength)
	axis, angle := vecmath.QuatToAxisAngle(f.trend)
	scaled := vecmath.QuatFromAxisAngle(axis, angle*elapsed)
	f.extrapolated = vecmath.MulQuat(scaled, f.extrapolated)
	f.tExtrapolated = now
	return f.extrapolated
}

// predictState is the double-exponential predictor's state machine (spec
// §4.4 "Three states: Zero, StaticValue, MovingValue").
type predictState uint8

const (
	predictZero predictState = iota
	predictStatic
	predictMoving
)

// ClientPredictVector is the double-exponential predictor.
type ClientPredictVector struct {
	state                    predictState
	previousRaw              vecmath.Vec3
	filtered, previousFiltered vecmath.Vec3
	trend, previousTrend      vecmath.Vec3
	tLast                    int64
}

func NewClientPredictVector() *ClientPredictVector { return &ClientPredictVector{} }

// ReceiveNewValue feeds one raw sample through the state machine.
func (p *ClientPredictVector) ReceiveNewValue(c Constants, raw vecmath.Vec3, t int64) {
	switch p.state {
	case predictZero:
		p.filtered = raw
		p.previousFiltered = raw
		p.previousRaw = raw
		p.state = predictStatic
	case predictStatic:
		p.previousFiltered = p.filtered
		p.filtered = p.previousRaw.Add(raw).Scale(0.5)
		p.previousTrend = vecmath.Vec3{}
		p.trend = vecmath.LerpVec3(vecmath.Vec3{}, p.filtered.Sub(p.previousFiltered), c.Correction)
		p.previousRaw = raw
		p.state = predictMoving
	case predictMoving:
		p.previousFiltered = p.filtered
		p.filtered = vecmath.LerpVec3(raw, p.previousFiltered.Add(p.trend), c.Smoothing)
		p.previousTrend = p.trend
		p.trend = vecmath.LerpVec3(p.previousTrend, p.filtered.Sub(p.previousFiltered), c.Correction)
		p.previousRaw = raw
	}
	p.tLast = t
}

// Predicted returns filtered + trend*((now-t_last)/frame_ticks +
// prediction_bias); if more than one full frame elapsed without a new
// sample it synthesizes an update from the last raw value and halves the
// trend, damping runaway extrapolation (spec §4.4).
func (p *ClientPredictVector) Predicted(c Constants, now int64) vecmath.Vec3 {
	if p.state == predictZero {
		return vecmath.Vec3{}
	}
	if c.FrameTickLength > 0 && now-p.tLast > c.FrameTickLength {
		p.ReceiveNewValue(c, p.previousRaw, p.tLast+c.FrameTickLength)
		p.trend = p.trend.Scale(0.5)
	}
	elapsed := float32(now-p.tLast)/float32(c.FrameTickLength) + c.PredictionBias
	return p.filtered.Add(p.trend.Scale(elapsed))
}
