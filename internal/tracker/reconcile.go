package tracker

import (
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Origin is the static world transform applied to every published pose:
// a translation plus a rotation about the vertical (+Y) axis.
type Origin struct {
	Translation r3.Vec  `json:"translation"`
	Yaw         float64 `json:"yaw"`
}

// Rotation returns the yaw as a unit quaternion.
func (o Origin) Rotation() quat.Number {
	return quat.Number(r3.NewRotation(o.Yaw, r3.Vec{Y: 1}))
}

// TrackerPose is the pose published to the host for one device.
type TrackerPose struct {
	Position r3.Vec
	Rotation quat.Number
	Velocity r3.Vec

	WorldFromDriverTranslation r3.Vec
	WorldFromDriverRotation    quat.Number

	// PoseTimeOffset is always zero: predictions are already evaluated at
	// the requested time.
	PoseTimeOffset float64
	Timestamp      time.Time
	Status         Status
	Valid          bool
	Connected      bool
}

// NewTrackerPose returns the pose a device starts from: identity rotation,
// zero position and velocity, not yet valid.
func NewTrackerPose() TrackerPose {
	return TrackerPose{
		Rotation:                Identity,
		WorldFromDriverRotation: Identity,
		Status:                  StatusTooFewSamples,
	}
}

// Reconcile folds a prediction into the previous published pose. elapsed is
// the wall time in seconds since prev was produced.
//
// The velocity is an EMA of finite differences, v = 0.8*v + 0.2*dp/dt, and
// is held when elapsed is not positive or when prev never carried a real
// pose. With no samples at all the previous pose is republished frozen.
func Reconcile(prev TrackerPose, pred Prediction, origin Origin, elapsed float64, now time.Time) TrackerPose {
	next := prev
	next.Timestamp = now
	next.Status = pred.Status
	next.PoseTimeOffset = 0
	next.WorldFromDriverTranslation = origin.Translation
	next.WorldFromDriverRotation = origin.Rotation()

	if pred.Status == StatusTooFewSamples {
		return next
	}

	if rot, ok := normalize(CorrectHemisphere(pred.Rotation, prev.Rotation)); ok {
		next.Rotation = rot
	}
	next.Position = pred.Position
	next.Valid = true
	next.Connected = true

	if prev.Valid && elapsed > 0 {
		delta := r3.Scale((1-VelocityRetention)/elapsed, r3.Sub(next.Position, prev.Position))
		next.Velocity = r3.Add(r3.Scale(VelocityRetention, prev.Velocity), delta)
	}
	return next
}
