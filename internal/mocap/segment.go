// Package mocap holds the skeletal data model shared by every motion source:
// segment poses, complete frames, and the snapshot store that hands the
// newest frame from an ingestion goroutine to the tracker update loop.
package mocap

import (
	"fmt"
	"strings"
)

// Segment indexes one rigid body part in a skeleton frame.
type Segment int

// Skeleton segments in frame order.
const (
	Hips Segment = iota
	RightUpLeg
	RightLeg
	RightFoot
	LeftUpLeg
	LeftLeg
	LeftFoot
	RightShoulder
	RightArm
	RightForeArm
	RightHand
	LeftShoulder
	LeftArm
	LeftForeArm
	LeftHand
	Head
	Neck
	Spine3
	Spine2
	Spine1
	Spine

	// SegmentCount is the number of segments in a full skeleton frame.
	SegmentCount int = iota
)

var segmentNames = [...]string{
	Hips:          "hips",
	RightUpLeg:    "right_up_leg",
	RightLeg:      "right_leg",
	RightFoot:     "right_foot",
	LeftUpLeg:     "left_up_leg",
	LeftLeg:       "left_leg",
	LeftFoot:      "left_foot",
	RightShoulder: "right_shoulder",
	RightArm:      "right_arm",
	RightForeArm:  "right_fore_arm",
	RightHand:     "right_hand",
	LeftShoulder:  "left_shoulder",
	LeftArm:       "left_arm",
	LeftForeArm:   "left_fore_arm",
	LeftHand:      "left_hand",
	Head:          "head",
	Neck:          "neck",
	Spine3:        "spine3",
	Spine2:        "spine2",
	Spine1:        "spine1",
	Spine:         "spine",
}

func (s Segment) String() string {
	if s.Valid() {
		return segmentNames[s]
	}
	return fmt.Sprintf("segment(%d)", int(s))
}

// Valid reports whether s names a skeleton segment.
func (s Segment) Valid() bool {
	return s >= 0 && int(s) < SegmentCount
}

// ParseSegment resolves a segment name such as "left_foot". Matching ignores
// case and accepts dashes or spaces in place of underscores.
func ParseSegment(name string) (Segment, error) {
	key := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	for i, n := range segmentNames {
		if n == key {
			return Segment(i), nil
		}
	}
	return -1, fmt.Errorf("unknown segment %q", name)
}

// MarshalText encodes the segment by name.
func (s Segment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a segment name.
func (s *Segment) UnmarshalText(b []byte) error {
	v, err := ParseSegment(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
