package device

import "time"

// HapticState is the vibration animation state of a device.
type HapticState int

const (
	HapticIdle HapticState = iota
	HapticVibrating
)

func (s HapticState) String() string {
	if s == HapticVibrating {
		return "vibrating"
	}
	return "idle"
}

// HapticDuration is how long one identify pulse lasts.
const HapticDuration = time.Second

// haptics runs Idle -> Vibrating -> Idle. A trigger while vibrating does not
// restart the timer.
type haptics struct {
	state   HapticState
	elapsed time.Duration
}

func (h *haptics) trigger() {
	h.state = HapticVibrating
}

// advance adds one frame of time and returns to Idle once the pulse has run
// for longer than HapticDuration.
func (h *haptics) advance(frame time.Duration) {
	if h.state != HapticVibrating {
		return
	}
	h.elapsed += frame
	if h.elapsed > HapticDuration {
		h.state = HapticIdle
		h.elapsed = 0
	}
}
