// Package publish carries tracker poses out of the update loop: a fanout
// host that feeds every configured sink, and the JSON pose message those
// sinks share.
package publish

import (
	"time"

	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// PoseMessage is the wire view of one published tracker pose. Rotations are
// ordered w, x, y, z.
type PoseMessage struct {
	Serial    string     `json:"serial"`
	Index     uint32     `json:"index"`
	Timestamp int64      `json:"timestamp_ns,string"`
	Status    string     `json:"status"`
	Valid     bool       `json:"valid"`
	Position  [3]float64 `json:"position"`
	Rotation  [4]float64 `json:"rotation"`
	Velocity  [3]float64 `json:"velocity"`
	Origin    [3]float64 `json:"origin_translation"`
	OriginRot [4]float64 `json:"origin_rotation"`
}

// NewPoseMessage flattens a pose for encoding.
func NewPoseMessage(index uint32, serial string, p tracker.TrackerPose) PoseMessage {
	m := PoseMessage{
		Serial:    serial,
		Index:     index,
		Status:    p.Status.String(),
		Valid:     p.Valid,
		Position:  [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Rotation:  [4]float64{p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag},
		Velocity:  [3]float64{p.Velocity.X, p.Velocity.Y, p.Velocity.Z},
		Origin:    [3]float64{p.WorldFromDriverTranslation.X, p.WorldFromDriverTranslation.Y, p.WorldFromDriverTranslation.Z},
		OriginRot: [4]float64{p.WorldFromDriverRotation.Real, p.WorldFromDriverRotation.Imag, p.WorldFromDriverRotation.Jmag, p.WorldFromDriverRotation.Kmag},
	}
	if !p.Timestamp.IsZero() {
		m.Timestamp = p.Timestamp.UnixNano()
	}
	return m
}

// Time returns the pose timestamp.
func (m PoseMessage) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}
