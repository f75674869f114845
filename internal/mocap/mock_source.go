package mocap

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

// MockSource synthesises a skeleton walking a circle around the origin. It
// stands in for a suit in dev mode and in tests.
type MockSource struct {
	clock timeutil.Clock
	start time.Time
	seq   uint64

	// Radius of the walked circle in metres.
	Radius float64
	// StepHz is the stride frequency.
	StepHz float64
	// AngularSpeed is the heading rate around the circle in rad/s.
	AngularSpeed float64
}

// Standing offsets from the hips with x to the right, y up, z forward.
var restOffsets = [SegmentCount]r3.Vec{
	Hips:          {},
	RightUpLeg:    {X: -0.1},
	RightLeg:      {X: -0.1, Y: -0.45},
	RightFoot:     {X: -0.1, Y: -0.88},
	LeftUpLeg:     {X: 0.1},
	LeftLeg:       {X: 0.1, Y: -0.45},
	LeftFoot:      {X: 0.1, Y: -0.88},
	RightShoulder: {X: -0.08, Y: 0.45},
	RightArm:      {X: -0.18, Y: 0.45},
	RightForeArm:  {X: -0.2, Y: 0.18},
	RightHand:     {X: -0.2, Y: -0.05},
	LeftShoulder:  {X: 0.08, Y: 0.45},
	LeftArm:       {X: 0.18, Y: 0.45},
	LeftForeArm:   {X: 0.2, Y: 0.18},
	LeftHand:      {X: 0.2, Y: -0.05},
	Head:          {Y: 0.65},
	Neck:          {Y: 0.55},
	Spine3:        {Y: 0.4},
	Spine2:        {Y: 0.3},
	Spine1:        {Y: 0.2},
	Spine:         {Y: 0.1},
}

const mockHipHeight = 0.95

// NewMockSource creates a walking skeleton generator. A nil clock uses wall
// time.
func NewMockSource(clock timeutil.Clock) *MockSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &MockSource{
		clock:        clock,
		start:        clock.Now(),
		Radius:       1.0,
		StepHz:       0.9,
		AngularSpeed: 0.4,
	}
}

// Next returns the skeleton at the current clock time.
func (m *MockSource) Next() Frame {
	now := m.clock.Now()
	m.seq++
	return Frame{
		Captured: now,
		Received: now,
		Sequence: m.seq,
		Segments: m.At(timeutil.Seconds(now.Sub(m.start))),
	}
}

// At returns the segment poses t seconds into the walk.
func (m *MockSource) At(t float64) []SegmentPose {
	theta := m.AngularSpeed * t
	phase := 2 * math.Pi * m.StepHz * t
	heading := r3.NewRotation(-theta, r3.Vec{Y: 1})
	rot := quat.Number(heading)

	hips := r3.Vec{
		X: m.Radius * math.Cos(theta),
		Y: mockHipHeight + 0.02*math.Cos(2*phase),
		Z: m.Radius * math.Sin(theta),
	}

	swing := func(p float64) (stride, lift float64) {
		return 0.2 * math.Sin(p), 0.08 * math.Max(0, math.Sin(p))
	}
	rStride, rLift := swing(phase)
	lStride, lLift := swing(phase + math.Pi)

	out := make([]SegmentPose, SegmentCount)
	for i, off := range restOffsets {
		local := off
		switch Segment(i) {
		case RightFoot:
			local.Z += rStride
			local.Y += rLift
		case RightLeg:
			local.Z += rStride / 2
			local.Y += rLift / 2
		case LeftFoot:
			local.Z += lStride
			local.Y += lLift
		case LeftLeg:
			local.Z += lStride / 2
			local.Y += lLift / 2
		case RightHand, RightForeArm:
			local.Z += lStride * 0.75
		case LeftHand, LeftForeArm:
			local.Z += rStride * 0.75
		}
		out[i] = SegmentPose{
			Translation: r3.Add(hips, heading.Rotate(local)),
			Rotation:    rot,
		}
	}
	return out
}

// Run queues a new frame into snap at rate frames per second until ctx is
// cancelled.
func (m *MockSource) Run(ctx context.Context, snap *Snapshot, rate float64) error {
	if rate <= 0 {
		rate = 60
	}
	ticker := m.clock.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			snap.Queue(m.Next())
		}
	}
}
