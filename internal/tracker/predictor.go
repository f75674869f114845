package tracker

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

// Status describes how much history backed a Prediction.
type Status int

const (
	// StatusOK means the prediction is a regression over at least four samples.
	StatusOK Status = iota
	// StatusInsufficientHistory means one to three samples were buffered and
	// the most recent one was returned verbatim.
	StatusInsufficientHistory
	// StatusTooFewSamples means the history was empty; the prediction holds
	// no pose.
	StatusTooFewSamples
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficientHistory:
		return "insufficient_history"
	case StatusTooFewSamples:
		return "too_few_samples"
	default:
		return "unknown"
	}
}

// Prediction is the pose the history expects at a requested age. Rotation is
// regressed per component and is not normalised.
type Prediction struct {
	Position r3.Vec
	Rotation quat.Number
	Status   Status
	// Clamped is set when the requested age reached further into the future
	// than MaxExtrapolation allows.
	Clamped bool
}

// Predict estimates the pose at offset seconds before now. Positive offsets
// look into the past; negative offsets extrapolate forward, limited to
// MaxExtrapolation. Stored ages are relative to the last advance, so the time
// since then is subtracted from the request before fitting.
//
// The limit also applies relative to the newest stored sample: a regression
// never reaches more than MaxExtrapolation past the data backing it, so when
// the source stalls the prediction stops moving.
func (h *History) Predict(offset float64) Prediction {
	at := offset
	if !h.lastAdvance.IsZero() {
		at -= timeutil.Seconds(h.clock.Since(h.lastAdvance))
	}
	clamped := false
	if at < -MaxExtrapolation {
		at = -MaxExtrapolation
		clamped = true
	}

	n := len(h.entries)
	switch {
	case n == 0:
		return Prediction{Rotation: Identity, Status: StatusTooFewSamples, Clamped: clamped}
	case n < minRegressionSamples:
		s := h.entries[0]
		return Prediction{Position: s.Position, Rotation: s.Rotation, Status: StatusInsufficientHistory, Clamped: clamped}
	}
	if limit := h.entries[0].Age - MaxExtrapolation; at < limit {
		at = limit
		clamped = true
	}

	ages := h.scratchAges[:n]
	for i, s := range h.entries {
		ages[i] = s.Age
	}
	var out [channelCount]float64
	for c := 0; c < channelCount; c++ {
		values := h.scratchValues[c][:n]
		for i, s := range h.entries {
			values[i] = s.channels()[c]
		}
		out[c] = regress(ages, values, at)
	}
	pos, rot := fromChannels(out)
	return Prediction{Position: pos, Rotation: rot, Status: StatusOK, Clamped: clamped}
}

// regress fits value = alpha + beta*age by least squares and evaluates it at
// the requested age. A channel that barely moves, or samples that all share
// one age, fall back to the channel mean; an exactly constant channel
// returns its value unchanged.
func regress(ages, values []float64, at float64) float64 {
	if floats.Max(values) == floats.Min(values) {
		return values[0]
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	if variance < varianceEpsilon {
		return mean
	}
	if _, ageVariance := stat.PopMeanVariance(ages, nil); ageVariance < varianceEpsilon {
		return mean
	}
	alpha, beta := stat.LinearRegression(ages, values, nil, false)
	return alpha + beta*at
}
