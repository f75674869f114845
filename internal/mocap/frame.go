package mocap

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

// SegmentPose is the position (metres) and orientation of one segment.
type SegmentPose struct {
	Translation r3.Vec
	Rotation    quat.Number
}

// Frame is one complete skeleton update from a motion source.
type Frame struct {
	// Captured is when the source sampled the skeleton. Zero means unknown;
	// consumers treat the frame as captured when it was received. Snapshot
	// rebases sender stamps onto the local clock before storing them.
	Captured time.Time
	Received time.Time
	Sequence uint64
	Segments []SegmentPose
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	out := f
	out.Segments = append([]SegmentPose(nil), f.Segments...)
	return out
}

// Source is the read side of a motion source as seen by tracker devices.
// Calls never block on I/O.
type Source interface {
	// LatestPose returns the newest pose for a segment together with its
	// capture time. ok is false when no frame has arrived or the frame does
	// not carry that segment.
	LatestPose(segment Segment) (pose SegmentPose, captured time.Time, ok bool)

	// SegmentCount returns the number of segments in the newest frame.
	SegmentCount() int
}

// Snapshot holds the most recent complete frame. Ingestion goroutines call
// Queue; the update loop reads through the Source methods. Readers get a
// copy taken under the lock and never see a partially written frame.
type Snapshot struct {
	mu     sync.RWMutex
	frame  Frame
	have   bool
	queued uint64
	clock  timeutil.Clock
	offset ClockOffset
}

// NewSnapshot creates an empty snapshot store. A nil clock uses wall time
// to stamp received frames.
func NewSnapshot(clock timeutil.Clock) *Snapshot {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Snapshot{clock: clock}
}

// Queue replaces the stored frame with a copy of f. Sequence numbers of zero
// are assigned locally so every stored frame is distinguishable. A sender
// capture stamp is moved onto the local clock with a ClockOffset, so a
// sender whose clock runs behind ours does not make every sample look old.
func (s *Snapshot) Queue(f Frame) {
	c := f.Clone()
	if c.Received.IsZero() {
		c.Received = s.clock.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Captured.IsZero() {
		c.Captured = c.Received
	} else {
		c.Captured = s.offset.Observe(c.Captured, c.Received)
	}
	s.queued++
	if c.Sequence == 0 {
		c.Sequence = s.queued
	}
	s.frame = c
	s.have = true
}

// Latest returns a copy of the newest frame.
func (s *Snapshot) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have {
		return Frame{}, false
	}
	return s.frame.Clone(), true
}

// LatestPose implements Source.
func (s *Snapshot) LatestPose(segment Segment) (SegmentPose, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have || segment < 0 || int(segment) >= len(s.frame.Segments) {
		return SegmentPose{}, time.Time{}, false
	}
	return s.frame.Segments[segment], s.frame.Captured, true
}

// SegmentCount implements Source.
func (s *Snapshot) SegmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frame.Segments)
}

// ClockOffset returns how far the local clock is estimated to run ahead of
// the sender's.
func (s *Snapshot) ClockOffset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset.Offset()
}

// Queued returns how many frames have been stored since creation.
func (s *Snapshot) Queued() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queued
}
