package mocap

import (
	"time"

	"github.com/banshee-data/mocap.bridge/internal/monitoring"
)

// offsetWindow is how many recent frames the clock offset is estimated over.
// At 100 Hz it spans a little over half a second, short enough to follow
// drift and long enough to include a frame that crossed the network quickly.
const offsetWindow = 64

// offsetJumpLog is the change in estimated offset that gets logged.
const offsetJumpLog = 50 * time.Millisecond

// ClockOffset maps sender capture stamps onto the local clock. Each frame
// contributes received-captured, which is the clock skew plus that frame's
// transport delay; the minimum over a sliding window is taken as the skew.
// Rebased capture times keep the spacing the sender measured while their
// absolute value is anchored to when frames actually reach us.
//
// Not safe for concurrent use; Snapshot calls it under its lock.
type ClockOffset struct {
	samples [offsetWindow]time.Duration
	n       int
	next    int
	current time.Duration
	logged  time.Duration
	have    bool
}

// Observe records one frame and returns its capture time on the local clock.
func (c *ClockOffset) Observe(captured, received time.Time) time.Time {
	c.samples[c.next] = received.Sub(captured)
	c.next = (c.next + 1) % offsetWindow
	if c.n < offsetWindow {
		c.n++
	}

	best := c.samples[0]
	for _, d := range c.samples[1:c.n] {
		if d < best {
			best = d
		}
	}
	c.current = best

	if jump := best - c.logged; !c.have || jump > offsetJumpLog || jump < -offsetJumpLog {
		monitoring.Logf("[mocap] source clock offset %v", best)
		c.logged = best
		c.have = true
	}
	return captured.Add(best)
}

// Offset returns the current estimate: how far the local clock is ahead of
// the sender's.
func (c *ClockOffset) Offset() time.Duration { return c.current }
