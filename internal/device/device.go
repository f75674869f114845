// Package device exposes skeleton segments as tracker devices. Each
// TrackerDevice owns one history buffer and one published pose, and is
// advanced once per host frame by the Driver.
package device

import (
	"sync"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/timeutil"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// Host receives published poses. deviceIndex is the ephemeral slot the
// driver assigned on activation, not the skeleton segment.
type Host interface {
	PublishPose(deviceIndex uint32, serial string, pose tracker.TrackerPose)
}

// HostFunc adapts a function to Host.
type HostFunc func(deviceIndex uint32, serial string, pose tracker.TrackerPose)

// PublishPose calls f.
func (f HostFunc) PublishPose(deviceIndex uint32, serial string, pose tracker.TrackerPose) {
	f(deviceIndex, serial, pose)
}

// DropFunc observes samples rejected by a device's history.
type DropFunc func(serial string, drop tracker.Drop)

// TrackerDevice is one tracked segment presented as a positional tracker.
//
// Update must only be called from one goroutine. Vibrate, Reconfigure,
// SetOrigin and Status are safe from any goroutine.
type TrackerDevice struct {
	serial  string
	segment mocap.Segment
	role    mocap.TrackerRole
	hint    string
	clock   timeutil.Clock
	source  mocap.Source
	onDrop  DropFunc

	// Update-path state.
	history      *tracker.History
	settings     Settings
	pose         tracker.TrackerPose
	lastTick     time.Time
	lastCaptured time.Time
	haptic       haptics
	lastResult   string

	origin originStore

	mu             sync.Mutex
	index          uint32
	active         bool
	pending        *Settings
	vibratePending bool
	status         Status
}

// Config configures a TrackerDevice.
type Config struct {
	Serial   string
	Segment  mocap.Segment
	Role     mocap.TrackerRole
	Source   mocap.Source
	Settings Settings
	Clock    timeutil.Clock
	OnDrop   DropFunc
}

// New creates an inactive device.
func New(cfg Config) *TrackerDevice {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	d := &TrackerDevice{
		serial:  cfg.Serial,
		segment: cfg.Segment,
		role:    cfg.Role,
		hint:    cfg.Role.Hint(),
		clock:   clock,
		source:  cfg.Source,
		onDrop:  cfg.OnDrop,
		pose:    tracker.NewTrackerPose(),
	}
	d.apply(cfg.Settings.Clamp(), true)
	d.status = d.buildStatus()
	return d
}

// Serial returns the device's stable identifier.
func (d *TrackerDevice) Serial() string { return d.serial }

// Segment returns the skeleton segment this device follows.
func (d *TrackerDevice) Segment() mocap.Segment { return d.segment }

// Role returns the configured tracker role.
func (d *TrackerDevice) Role() mocap.TrackerRole { return d.role }

// RoleHint returns the controller type hint resolved from the role.
func (d *TrackerDevice) RoleHint() string { return d.hint }

func (d *TrackerDevice) activate(index uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index = index
	d.active = true
}

func (d *TrackerDevice) deactivate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
}

// Vibrate requests an identify pulse. It takes effect on the next Update.
func (d *TrackerDevice) Vibrate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vibratePending = true
}

// SetOrigin replaces the world origin. The next Update publishes it.
func (d *TrackerDevice) SetOrigin(o tracker.Origin) {
	d.origin.Store(o)
}

// Reconfigure queues new settings. The origin changes immediately; buffer
// settings are applied at the start of the next Update so the history is
// only ever touched from the update goroutine.
func (d *TrackerDevice) Reconfigure(s Settings) {
	s = s.Clamp()
	d.SetOrigin(s.Origin)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &s
}

func (d *TrackerDevice) apply(s Settings, force bool) {
	if force || d.settings.resetsHistory(s) {
		d.history = tracker.NewHistory(tracker.HistoryConfig{
			Capacity: s.HistoryCapacity,
			MaxAge:   s.MaxAgeSeconds,
			Clock:    d.clock,
			OnDrop:   d.handleDrop,
		})
		d.lastCaptured = time.Time{}
	}
	d.settings = s
	d.origin.Store(s.Origin)
}

func (d *TrackerDevice) handleDrop(drop tracker.Drop) {
	if d.onDrop != nil {
		d.onDrop(d.serial, drop)
	}
}

// Update advances the device by one host frame and publishes its pose.
// frameTime is the duration of the previous host frame and drives the
// haptic timer. Inactive devices, and devices without a source or skeleton
// data, leave the last published pose in place.
func (d *TrackerDevice) Update(host Host, frameTime time.Duration) {
	d.mu.Lock()
	active, index := d.active, d.index
	pending, vibrate := d.pending, d.vibratePending
	d.pending, d.vibratePending = nil, false
	d.mu.Unlock()

	if pending != nil {
		d.apply(*pending, false)
	}
	if !active {
		d.publishStatus()
		return
	}

	if vibrate {
		d.haptic.trigger()
	}
	d.haptic.advance(frameTime)

	now := d.clock.Now()
	var elapsed float64
	if !d.lastTick.IsZero() {
		elapsed = timeutil.Seconds(now.Sub(d.lastTick))
	}
	d.lastTick = now
	d.history.Advance()

	if d.source == nil || !d.segment.Valid() || d.source.SegmentCount() == 0 {
		d.publishStatus()
		return
	}
	segPose, captured, ok := d.source.LatestPose(d.segment)
	if !ok {
		d.publishStatus()
		return
	}

	if !captured.Equal(d.lastCaptured) {
		d.lastCaptured = captured
		age := timeutil.Seconds(now.Sub(captured))
		if age < 0 {
			age = 0
		}
		res := d.history.Insert(tracker.Sample{
			Age:      age,
			Position: segPose.Translation,
			Rotation: segPose.Rotation,
		})
		d.lastResult = res.String()
	}

	pred := d.history.Predict(d.settings.RequestOffset)
	d.pose = tracker.Reconcile(d.pose, pred, d.origin.Load(), elapsed, now)
	if host != nil {
		host.PublishPose(index, d.serial, d.pose)
	}
	d.publishStatus()
}

// Status is a point-in-time view of a device for diagnostics.
type Status struct {
	Serial       string               `json:"serial"`
	Segment      mocap.Segment        `json:"segment"`
	Role         mocap.TrackerRole    `json:"role"`
	RoleHint     string               `json:"role_hint"`
	Index        uint32               `json:"index"`
	Active       bool                 `json:"active"`
	Haptic       string               `json:"haptic"`
	HistoryLen   int                  `json:"history_len"`
	LastInsert   string               `json:"last_insert,omitempty"`
	Stats        tracker.HistoryStats `json:"stats"`
	Settings     Settings             `json:"settings"`
	Pose         tracker.TrackerPose  `json:"-"`
	PredictState string               `json:"predict_status"`
}

func (d *TrackerDevice) buildStatus() Status {
	return Status{
		Serial:       d.serial,
		Segment:      d.segment,
		Role:         d.role,
		RoleHint:     d.hint,
		Haptic:       d.haptic.state.String(),
		HistoryLen:   d.history.Len(),
		LastInsert:   d.lastResult,
		Stats:        d.history.Stats(),
		Settings:     d.settings,
		Pose:         d.pose,
		PredictState: d.pose.Status.String(),
	}
}

func (d *TrackerDevice) publishStatus() {
	s := d.buildStatus()
	d.mu.Lock()
	defer d.mu.Unlock()
	s.Index, s.Active = d.index, d.active
	d.status = s
}

// Status returns the state recorded at the end of the last Update.
func (d *TrackerDevice) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Index, s.Active = d.index, d.active
	return s
}
