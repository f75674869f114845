package mocap

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxFrameSegments bounds the segment count accepted from the wire.
const MaxFrameSegments = 256

// ErrEmptyFrame is returned for datagrams that carry no segments.
var ErrEmptyFrame = errors.New("frame has no segments")

// wireFrame is the neutral JSON envelope used by the UDP, serial and replay
// inputs. Each segment is [x, y, z, qw, qx, qy, qz].
type wireFrame struct {
	Captured int64        `json:"t,omitempty"`
	Sequence uint64       `json:"seq,omitempty"`
	Segments [][7]float64 `json:"segments"`
}

// DecodeFrame parses one JSON frame datagram.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(w.Segments) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	if len(w.Segments) > MaxFrameSegments {
		return Frame{}, fmt.Errorf("decode frame: %d segments exceeds limit %d", len(w.Segments), MaxFrameSegments)
	}

	f := Frame{
		Sequence: w.Sequence,
		Segments: make([]SegmentPose, len(w.Segments)),
	}
	if w.Captured > 0 {
		f.Captured = time.Unix(0, w.Captured)
	}
	for i, s := range w.Segments {
		f.Segments[i] = SegmentPose{
			Translation: r3.Vec{X: s[0], Y: s[1], Z: s[2]},
			Rotation:    quat.Number{Real: s[3], Imag: s[4], Jmag: s[5], Kmag: s[6]},
		}
	}
	return f, nil
}

// EncodeFrame renders a frame in the datagram format read by DecodeFrame.
func EncodeFrame(f Frame) ([]byte, error) {
	w := wireFrame{
		Sequence: f.Sequence,
		Segments: make([][7]float64, len(f.Segments)),
	}
	if !f.Captured.IsZero() {
		w.Captured = f.Captured.UnixNano()
	}
	for i, s := range f.Segments {
		w.Segments[i] = [7]float64{
			s.Translation.X, s.Translation.Y, s.Translation.Z,
			s.Rotation.Real, s.Rotation.Imag, s.Rotation.Jmag, s.Rotation.Kmag,
		}
	}
	return json.Marshal(w)
}
