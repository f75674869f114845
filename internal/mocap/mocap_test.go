package mocap

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

func TestParseSegment(t *testing.T) {
	tests := []struct {
		in      string
		want    Segment
		wantErr bool
	}{
		{"hips", Hips, false},
		{"Left-Foot", LeftFoot, false},
		{" right fore arm ", RightForeArm, false},
		{"spine3", Spine3, false},
		{"tail", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSegment(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 21, SegmentCount)
	assert.Equal(t, "segment(99)", Segment(99).String())
}

func TestSegment_JSON(t *testing.T) {
	var cfg struct {
		Segment Segment `json:"segment"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"segment":"right_foot"}`), &cfg))
	assert.Equal(t, RightFoot, cfg.Segment)

	assert.Error(t, json.Unmarshal([]byte(`{"segment":"wing"}`), &cfg))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want TrackerRole
		hint string
	}{
		{"", RoleGeneric, "vive_tracker"},
		{"TrackerRole_LeftFoot", RoleLeftFoot, "vive_tracker_left_foot"},
		{"TrackerRole_RightFoot", RoleRightFoot, "vive_tracker_right_foot"},
		{"TrackerRole_Waist", RoleWaist, "vive_tracker_waist"},
		{"right_elbow", RoleRightElbow, "vive_tracker_right_elbow"},
		{"TrackerRole_Handed", RoleGeneric, "vive_tracker"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.hint, got.Hint())
		})
	}

	_, err := ParseRole("TrackerRole_Tail")
	assert.Error(t, err)
	assert.Equal(t, "vive_tracker", TrackerRole(42).Hint())
}

func TestDefaultRole(t *testing.T) {
	assert.Equal(t, RoleWaist, DefaultRole(Hips))
	assert.Equal(t, RoleLeftFoot, DefaultRole(LeftFoot))
	assert.Equal(t, RoleRightKnee, DefaultRole(RightLeg))
	assert.Equal(t, RoleGeneric, DefaultRole(Head))
}

func TestSnapshot_CopiesFrames(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	snap := NewSnapshot(clock)

	_, _, ok := snap.LatestPose(Hips)
	assert.False(t, ok)
	assert.Equal(t, 0, snap.SegmentCount())

	segs := []SegmentPose{{Translation: r3.Vec{X: 1}, Rotation: quat.Number{Real: 1}}}
	snap.Queue(Frame{Segments: segs})
	segs[0].Translation.X = 99

	pose, captured, ok := snap.LatestPose(Hips)
	require.True(t, ok)
	assert.Equal(t, 1.0, pose.Translation.X)
	assert.Equal(t, clock.Now(), captured, "unknown capture time defaults to receipt")

	_, _, ok = snap.LatestPose(LeftFoot)
	assert.False(t, ok, "segment beyond frame")

	frame, ok := snap.Latest()
	require.True(t, ok)
	frame.Segments[0].Translation.X = 42
	pose, _, _ = snap.LatestPose(Hips)
	assert.Equal(t, 1.0, pose.Translation.X)

	assert.Equal(t, uint64(1), frame.Sequence)
	assert.Equal(t, uint64(1), snap.Queued())
}

func TestClockOffset(t *testing.T) {
	base := time.Unix(1_750_000_000, 0)
	var c ClockOffset

	// Sender 500ms behind, first frame with no transport delay.
	got := c.Observe(base, base.Add(500*time.Millisecond))
	assert.Equal(t, base.Add(500*time.Millisecond), got)

	// A slower frame keeps the estimate and shows up as 20ms old.
	next := base.Add(10 * time.Millisecond)
	got = c.Observe(next, next.Add(520*time.Millisecond))
	assert.Equal(t, next.Add(500*time.Millisecond), got)
	assert.Equal(t, 500*time.Millisecond, c.Offset())

	// Once the window has rolled over, a smaller skew takes over.
	for i := 0; i < offsetWindow; i++ {
		at := base.Add(time.Duration(i+2) * 10 * time.Millisecond)
		c.Observe(at, at.Add(300*time.Millisecond))
	}
	assert.Equal(t, 300*time.Millisecond, c.Offset())
}

func TestClockOffset_SenderAhead(t *testing.T) {
	received := time.Unix(1_750_000_000, 0)
	var c ClockOffset
	got := c.Observe(received.Add(time.Second), received)
	assert.Equal(t, received, got)
	assert.Equal(t, -time.Second, c.Offset())
}

func TestSnapshot_RebasesSenderClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	snap := NewSnapshot(clock)
	segs := []SegmentPose{{Rotation: quat.Number{Real: 1}}}

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		snap.Queue(Frame{Captured: clock.Now().Add(-2 * time.Second), Segments: segs})
		_, captured, ok := snap.LatestPose(Hips)
		require.True(t, ok)
		assert.Equal(t, clock.Now(), captured, "frame %d", i)
	}
	assert.Equal(t, 2*time.Second, snap.ClockOffset())

	// A frame that took 40ms longer than the rest keeps that delay.
	clock.Advance(10 * time.Millisecond)
	snap.Queue(Frame{Captured: clock.Now().Add(-2040 * time.Millisecond), Segments: segs})
	_, captured, _ := snap.LatestPose(Hips)
	assert.Equal(t, clock.Now().Add(-40*time.Millisecond), captured)
}

func TestFrameCodec(t *testing.T) {
	in := Frame{
		Captured: time.Unix(0, 1_700_000_000_123_456_789),
		Sequence: 7,
		Segments: []SegmentPose{
			{Translation: r3.Vec{X: 0.1, Y: 0.9, Z: -0.2}, Rotation: quat.Number{Real: 0.7071, Jmag: 0.7071}},
			{Translation: r3.Vec{Y: 1.6}, Rotation: quat.Number{Real: 1}},
		},
	}
	data, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(data)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"segments":[]}`))
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)

	big := make([][7]float64, MaxFrameSegments+1)
	data, _ := json.Marshal(map[string]any{"segments": big})
	_, err = DecodeFrame(data)
	assert.Error(t, err)

	f, err := DecodeFrame([]byte(`{"segments":[[1,2,3,1,0,0,0]]}`))
	require.NoError(t, err)
	assert.True(t, f.Captured.IsZero())
}

func TestMockSource_StaysInPlayspace(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewMockSource(clock)

	for i := 0; i < 200; i++ {
		f := src.Next()
		require.Len(t, f.Segments, SegmentCount)
		for s, p := range f.Segments {
			assert.Less(t, r3.Norm(p.Translation), 3.0, "segment %v", Segment(s))
			assert.InDelta(t, 1.0, quat.Abs(p.Rotation), 1e-9)
		}
		assert.GreaterOrEqual(t, f.Segments[LeftFoot].Translation.Y, 0.0)
		assert.Greater(t, f.Segments[Head].Translation.Y, f.Segments[Hips].Translation.Y)
		clock.Advance(50 * time.Millisecond)
	}
	assert.Equal(t, uint64(200), src.seq)
}

func TestMockSource_Run(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewMockSource(clock)
	snap := NewSnapshot(clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, snap, 100) }()

	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Millisecond)
		return snap.Queued() > 0
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, SegmentCount, snap.SegmentCount())
}
