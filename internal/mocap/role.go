package mocap

import (
	"fmt"
	"strings"
)

// TrackerRole is the body role a tracker device advertises to the host.
type TrackerRole int

const (
	RoleGeneric TrackerRole = iota
	RoleWaist
	RoleChest
	RoleLeftFoot
	RoleRightFoot
	RoleLeftKnee
	RoleRightKnee
	RoleLeftElbow
	RoleRightElbow
	RoleLeftShoulder
	RoleRightShoulder
	roleCount
)

type roleInfo struct {
	name string
	hint string
}

var roles = [roleCount]roleInfo{
	RoleGeneric:       {"generic", "vive_tracker"},
	RoleWaist:         {"waist", "vive_tracker_waist"},
	RoleChest:         {"chest", "vive_tracker_chest"},
	RoleLeftFoot:      {"left_foot", "vive_tracker_left_foot"},
	RoleRightFoot:     {"right_foot", "vive_tracker_right_foot"},
	RoleLeftKnee:      {"left_knee", "vive_tracker_left_knee"},
	RoleRightKnee:     {"right_knee", "vive_tracker_right_knee"},
	RoleLeftElbow:     {"left_elbow", "vive_tracker_left_elbow"},
	RoleRightElbow:    {"right_elbow", "vive_tracker_right_elbow"},
	RoleLeftShoulder:  {"left_shoulder", "vive_tracker_left_shoulder"},
	RoleRightShoulder: {"right_shoulder", "vive_tracker_right_shoulder"},
}

func (r TrackerRole) valid() bool { return r >= 0 && r < roleCount }

func (r TrackerRole) String() string {
	if r.valid() {
		return roles[r].name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Hint returns the controller type string the host uses to pick bindings
// and icons for this role. Unknown roles fall back to the generic hint.
func (r TrackerRole) Hint() string {
	if r.valid() {
		return roles[r].hint
	}
	return roles[RoleGeneric].hint
}

// ParseRole resolves a role name. Both the short form ("left_foot") and the
// host form ("TrackerRole_LeftFoot") are accepted; the empty string is
// RoleGeneric.
func ParseRole(name string) (TrackerRole, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "trackerrole_")
	if key == "" || key == "handed" {
		return RoleGeneric, nil
	}
	for i, info := range roles {
		if info.name == key || strings.ReplaceAll(info.name, "_", "") == key {
			return TrackerRole(i), nil
		}
	}
	return RoleGeneric, fmt.Errorf("unknown tracker role %q", name)
}

// MarshalText encodes the role by name.
func (r TrackerRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *TrackerRole) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// DefaultRole is the role a segment gets when none is configured.
func DefaultRole(s Segment) TrackerRole {
	switch s {
	case Hips:
		return RoleWaist
	case Spine2, Spine3:
		return RoleChest
	case LeftFoot:
		return RoleLeftFoot
	case RightFoot:
		return RoleRightFoot
	case LeftLeg:
		return RoleLeftKnee
	case RightLeg:
		return RoleRightKnee
	case LeftForeArm:
		return RoleLeftElbow
	case RightForeArm:
		return RoleRightElbow
	case LeftShoulder, LeftArm:
		return RoleLeftShoulder
	case RightShoulder, RightArm:
		return RoleRightShoulder
	default:
		return RoleGeneric
	}
}
