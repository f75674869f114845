package tracker

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/monitoring"
	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

// InsertResult reports what History.Insert did with a sample.
type InsertResult int

const (
	InsertAccepted InsertResult = iota
	// InsertOutlier: the sample sat further than PlayspaceErrorThreshold from
	// a regression-backed prediction.
	InsertOutlier
	// InsertOutOfBounds: the sample sat further than PlayspaceBound from the
	// origin.
	InsertOutOfBounds
	// InsertTooLate: the buffer was full and the sample was older than every
	// retained entry.
	InsertTooLate
	// InsertInvalid: the sample carried NaN or Inf.
	InsertInvalid
)

func (r InsertResult) String() string {
	switch r {
	case InsertAccepted:
		return "accepted"
	case InsertOutlier:
		return "outlier"
	case InsertOutOfBounds:
		return "out_of_bounds"
	case InsertTooLate:
		return "too_late"
	case InsertInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Drop describes a rejected sample. Distance is measured from the
// prediction for outliers and from the origin for out-of-bounds samples.
type Drop struct {
	Reason    InsertResult
	Sample    Sample
	Predicted r3.Vec
	Distance  float64
}

// HistoryStats counts insert outcomes since the history was created.
type HistoryStats struct {
	Accepted    uint64 `json:"accepted"`
	Outliers    uint64 `json:"outliers"`
	OutOfBounds uint64 `json:"out_of_bounds"`
	TooLate     uint64 `json:"too_late"`
	Invalid     uint64 `json:"invalid"`
	Evicted     uint64 `json:"evicted"`
}

// HistoryConfig configures a History. Capacity below MinCapacity is raised
// to MinCapacity and a negative MaxAge is treated as zero.
type HistoryConfig struct {
	Capacity int
	// MaxAge is the eviction age in seconds. Zero keeps only the newest
	// sample and skips regression-based rejection.
	MaxAge float64
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
	// OnDrop, if set, is called for every rejected sample.
	OnDrop func(Drop)
}

// History is a bounded buffer of samples ordered by ascending age. Stored
// entries always form a contiguous, sorted prefix of the backing array;
// unused capacity is simply absent from the slice.
type History struct {
	entries    []Sample
	capacity   int
	maxAge     float64
	clock      timeutil.Clock
	onDrop      func(Drop)
	lastAdvance time.Time
	stats       HistoryStats

	scratchAges   []float64
	scratchValues [channelCount][]float64
}

// NewHistory creates an empty History.
func NewHistory(cfg HistoryConfig) *History {
	capacity := cfg.Capacity
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	maxAge := cfg.MaxAge
	if maxAge < 0 {
		maxAge = 0
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	h := &History{
		entries:     make([]Sample, 0, capacity),
		capacity:    capacity,
		maxAge:      maxAge,
		clock:       clock,
		onDrop:      cfg.OnDrop,
		scratchAges: make([]float64, capacity),
	}
	for c := range h.scratchValues {
		h.scratchValues[c] = make([]float64, capacity)
	}
	return h
}

// Len returns the number of stored samples.
func (h *History) Len() int { return len(h.entries) }

// Capacity returns the maximum number of stored samples.
func (h *History) Capacity() int { return h.capacity }

// MaxAge returns the eviction age in seconds.
func (h *History) MaxAge() float64 { return h.maxAge }

// Stats returns insert counters.
func (h *History) Stats() HistoryStats { return h.stats }

// Samples returns a copy of the stored samples, youngest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset empties the buffer. Counters are kept.
func (h *History) Reset() {
	h.entries = h.entries[:0]
	h.lastAdvance = time.Time{}
}

// Advance ages the stored samples to the current clock time and evicts those
// past maxAge. The owner calls it every frame so that a stalled source drains
// the history instead of extrapolating from it indefinitely. In passthrough
// mode (maxAge zero) the single stored sample is kept.
func (h *History) Advance() {
	if h.maxAge == 0 {
		return
	}
	h.advance(h.clock.Now())
}

// Insert offers a sample captured s.Age seconds ago. Rejected samples leave
// the buffer untouched apart from ageing; the result says why.
func (h *History) Insert(s Sample) InsertResult {
	if !s.Finite() {
		return h.drop(Drop{Reason: InsertInvalid, Sample: s})
	}
	now := h.clock.Now()

	if h.maxAge == 0 {
		h.lastAdvance = now
		if d := r3.Norm(s.Position); d > PlayspaceBound {
			return h.drop(Drop{Reason: InsertOutOfBounds, Sample: s, Distance: d})
		}
		h.entries = append(h.entries[:0], s)
		h.stats.Accepted++
		return InsertAccepted
	}

	pred := h.Predict(s.Age)
	if pred.Status != StatusTooFewSamples {
		s.Rotation = CorrectHemisphere(s.Rotation, pred.Rotation)
	}

	h.advance(now)

	if s.Age > h.maxAge {
		return h.drop(Drop{Reason: InsertTooLate, Sample: s, Predicted: pred.Position})
	}
	if pred.Status == StatusOK && !pred.Clamped {
		if d := r3.Norm(r3.Sub(s.Position, pred.Position)); d > PlayspaceErrorThreshold {
			return h.drop(Drop{Reason: InsertOutlier, Sample: s, Predicted: pred.Position, Distance: d})
		}
	}
	if d := r3.Norm(s.Position); d > PlayspaceBound {
		return h.drop(Drop{Reason: InsertOutOfBounds, Sample: s, Predicted: pred.Position, Distance: d})
	}

	n := len(h.entries)
	if n == h.capacity && h.entries[n-1].Age < s.Age {
		return h.drop(Drop{Reason: InsertTooLate, Sample: s, Predicted: pred.Position})
	}

	i := sort.Search(n, func(i int) bool { return h.entries[i].Age >= s.Age })
	if n < h.capacity {
		h.entries = append(h.entries, Sample{})
	}
	copy(h.entries[i+1:], h.entries[i:len(h.entries)-1])
	h.entries[i] = s
	h.stats.Accepted++
	return InsertAccepted
}

// advance ages every entry by the wall time since the previous advance and
// trims entries older than maxAge. Ages ascend, so eviction only ever cuts
// the tail.
func (h *History) advance(now time.Time) {
	if !h.lastAdvance.IsZero() {
		elapsed := timeutil.Seconds(now.Sub(h.lastAdvance))
		if elapsed < 0 {
			elapsed = 0
		}
		for i := range h.entries {
			h.entries[i].Age += elapsed
		}
	}
	h.lastAdvance = now

	keep := sort.Search(len(h.entries), func(i int) bool { return h.entries[i].Age > h.maxAge })
	h.stats.Evicted += uint64(len(h.entries) - keep)
	h.entries = h.entries[:keep]
}

// dropLogf reports routine drops. Out-of-order and invalid samples can
// arrive on every frame, so only one in dropLogEvery is printed.
var dropLogf = monitoring.RateLimited(dropLogEvery, monitoring.Prefixed("tracker"))

const dropLogEvery = 100

func (h *History) drop(d Drop) InsertResult {
	switch d.Reason {
	case InsertOutlier:
		h.stats.Outliers++
		monitoring.Logf("[tracker] dropped pose: error %.3fm from prediction (height %.3f vs predicted %.3f)",
			d.Distance, d.Sample.Position.Y, d.Predicted.Y)
	case InsertOutOfBounds:
		h.stats.OutOfBounds++
		monitoring.Logf("[tracker] dropped pose: outside playspace at %.3fm", d.Distance)
	case InsertTooLate:
		h.stats.TooLate++
		dropLogf("dropped pose: arrived %.3fs old (max age %.3fs, %d buffered)", d.Sample.Age, h.maxAge, len(h.entries))
	case InsertInvalid:
		h.stats.Invalid++
		dropLogf("dropped pose: non-finite sample %v %v", d.Sample.Position, d.Sample.Rotation)
	}
	if h.onDrop != nil {
		h.onDrop(d)
	}
	return d.Reason
}
