package device

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/config"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// MaxSmoothing is the upper clamp for SmoothingFactor.
const MaxSmoothing = 0.99

// Settings is the per-device pipeline configuration.
type Settings struct {
	HistoryCapacity int     `json:"history_capacity"`
	MaxAgeSeconds   float64 `json:"max_age_seconds"`
	// SmoothingFactor is accepted, clamped and reported. Velocity smoothing
	// uses a fixed EMA; a change here only resets history.
	SmoothingFactor float64 `json:"smoothing_factor"`
	// RequestOffset is the age in seconds each tick predicts at. Zero asks
	// for "now"; negative values extrapolate ahead.
	RequestOffset float64        `json:"request_offset_seconds"`
	Origin        tracker.Origin `json:"origin"`
}

// SettingsFromConfig builds clamped settings from a loaded config.
func SettingsFromConfig(c *config.BridgeConfig) Settings {
	o := c.GetOrigin()
	return Settings{
		HistoryCapacity: c.GetHistoryCapacity(),
		MaxAgeSeconds:   c.GetMaxAgeSeconds(),
		SmoothingFactor: c.GetSmoothingFactor(),
		RequestOffset:   c.GetRequestOffsetSeconds(),
		Origin: tracker.Origin{
			Translation: r3.Vec{X: o.Translation[0], Y: o.Translation[1], Z: o.Translation[2]},
			Yaw:         o.Yaw,
		},
	}.Clamp()
}

// Clamp forces every field into range. Nothing is rejected.
func (s Settings) Clamp() Settings {
	if s.HistoryCapacity < tracker.MinCapacity {
		s.HistoryCapacity = tracker.MinCapacity
	}
	if s.MaxAgeSeconds < 0 || math.IsNaN(s.MaxAgeSeconds) {
		s.MaxAgeSeconds = 0
	}
	switch {
	case s.SmoothingFactor < 0 || math.IsNaN(s.SmoothingFactor):
		s.SmoothingFactor = 0
	case s.SmoothingFactor > MaxSmoothing:
		s.SmoothingFactor = MaxSmoothing
	}
	if s.RequestOffset < -tracker.MaxExtrapolation || math.IsNaN(s.RequestOffset) {
		s.RequestOffset = -tracker.MaxExtrapolation
	}
	return s
}

// resetsHistory reports whether moving from s to next requires discarding
// buffered samples.
func (s Settings) resetsHistory(next Settings) bool {
	return s.HistoryCapacity != next.HistoryCapacity ||
		s.MaxAgeSeconds != next.MaxAgeSeconds ||
		s.SmoothingFactor != next.SmoothingFactor
}

// originStore publishes the world origin to the update path. Writers replace
// the whole value so readers never see a translation from one update paired
// with a rotation from another.
type originStore struct {
	mu     sync.RWMutex
	origin tracker.Origin
}

func (o *originStore) Load() tracker.Origin {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.origin
}

func (o *originStore) Store(v tracker.Origin) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.origin = v
}
