// Package tracker reconstructs a smooth, regularly sampled pose stream from
// jittered, timestamped segment samples. A History buffers recent samples by
// age, predicts the pose at a requested age by per-channel linear
// regression, and Reconcile folds each prediction into the published
// TrackerPose with an exponentially smoothed velocity.
//
// Nothing in this package locks: a History and the pose it feeds are owned by
// a single update goroutine.
package tracker

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// MinCapacity is the smallest history that still leaves room for a
	// regression over minRegressionSamples entries.
	MinCapacity = 5

	// MaxExtrapolation bounds how far into the future (negative age, in
	// seconds) a prediction may reach.
	MaxExtrapolation = 0.2

	// PlayspaceErrorThreshold is the largest distance in metres an incoming
	// sample may sit from the regressed pose before it is treated as an
	// outlier.
	PlayspaceErrorThreshold = 0.5

	// PlayspaceBound is the largest distance in metres from the origin a
	// sample may report.
	PlayspaceBound = 10.0

	// VelocityRetention is the EMA weight kept from the previous velocity.
	VelocityRetention = 0.8

	minRegressionSamples = 4
	varianceEpsilon      = 1e-8
	normEpsilon          = 1e-9
	channelCount         = 7
)

// Sample is one timestamped segment pose. Age is seconds since capture and
// is the only field that changes after insertion.
type Sample struct {
	Age      float64
	Position r3.Vec
	Rotation quat.Number
}

// Finite reports whether every component of the sample is a finite number.
func (s Sample) Finite() bool {
	if math.IsNaN(s.Age) || math.IsInf(s.Age, 0) {
		return false
	}
	for _, v := range s.channels() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// channels flattens the pose into x, y, z, w, i, j, k order.
func (s Sample) channels() [channelCount]float64 {
	return [channelCount]float64{
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Rotation.Real, s.Rotation.Imag, s.Rotation.Jmag, s.Rotation.Kmag,
	}
}

func fromChannels(c [channelCount]float64) (r3.Vec, quat.Number) {
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]},
		quat.Number{Real: c[3], Imag: c[4], Jmag: c[5], Kmag: c[6]}
}

// Identity is the unit quaternion with no rotation.
var Identity = quat.Number{Real: 1}

// CorrectHemisphere returns q or -q, whichever lies in the same hemisphere as
// ref. Both represent the same rotation; choosing the one with a
// non-negative dot product keeps per-channel regression and interpolation
// on the short arc. Applying it twice against the same ref is a no-op.
func CorrectHemisphere(q, ref quat.Number) quat.Number {
	if dot(q, ref) < 0 {
		return quat.Scale(-1, q)
	}
	return q
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// normalize returns q scaled to unit length, or false when q is too close to
// zero (or non-finite) to carry a direction.
func normalize(q quat.Number) (quat.Number, bool) {
	n := quat.Abs(q)
	if n < normEpsilon || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{}, false
	}
	return quat.Scale(1/n, q), true
}
