package monitor

import (
	"sort"
	"sync"

	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// DefaultTraceCapacity is how many poses each device trace keeps.
const DefaultTraceCapacity = 900

// traceRing is a fixed-size window of recent poses for one device.
type traceRing struct {
	poses    []publish.PoseMessage
	capacity int
	head     int // next write position
	size     int
}

func newTraceRing(capacity int) *traceRing {
	return &traceRing{poses: make([]publish.PoseMessage, capacity), capacity: capacity}
}

func (r *traceRing) add(m publish.PoseMessage) {
	r.poses[r.head] = m
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// ordered returns the stored poses oldest first.
func (r *traceRing) ordered() []publish.PoseMessage {
	out := make([]publish.PoseMessage, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.poses[(start+i)%r.capacity]
	}
	return out
}

func (r *traceRing) latest() (publish.PoseMessage, bool) {
	if r.size == 0 {
		return publish.PoseMessage{}, false
	}
	return r.poses[(r.head-1+r.capacity)%r.capacity], true
}

// Traces keeps a short pose history per device for the debug charts. It is
// a device.Host.
type Traces struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*traceRing
}

// NewTraces creates an empty trace store. capacity < 1 selects
// DefaultTraceCapacity.
func NewTraces(capacity int) *Traces {
	if capacity < 1 {
		capacity = DefaultTraceCapacity
	}
	return &Traces{capacity: capacity, rings: make(map[string]*traceRing)}
}

// PublishPose implements device.Host.
func (t *Traces) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	m := publish.NewPoseMessage(index, serial, pose)
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rings[serial]
	if !ok {
		r = newTraceRing(t.capacity)
		t.rings[serial] = r
	}
	r.add(m)
}

// Trace returns the stored poses for serial, oldest first.
func (t *Traces) Trace(serial string) []publish.PoseMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rings[serial]
	if !ok {
		return nil
	}
	return r.ordered()
}

// Latest returns the newest pose of every device, sorted by serial.
func (t *Traces) Latest() []publish.PoseMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]publish.PoseMessage, 0, len(t.rings))
	for _, r := range t.rings {
		if m, ok := r.latest(); ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// Serials lists the devices with a trace, sorted.
func (t *Traces) Serials() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.rings))
	for s := range t.rings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
