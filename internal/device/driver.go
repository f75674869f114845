package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/config"
	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/timeutil"
)

var (
	// ErrUnknownDevice is returned for serials the driver does not manage.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrDuplicateDevice is returned when a serial is added twice.
	ErrDuplicateDevice = errors.New("duplicate device serial")
)

// DriverConfig configures a Driver.
type DriverConfig struct {
	Host     Host
	Source   mocap.Source
	Settings Settings
	Clock    timeutil.Clock
	OnDrop   DropFunc
}

// Driver owns the tracker devices and advances them once per frame.
type Driver struct {
	host   Host
	source mocap.Source
	clock  timeutil.Clock
	onDrop DropFunc

	mu        sync.RWMutex
	devices   []*TrackerDevice
	bySerial  map[string]*TrackerDevice
	nextIndex uint32
	settings  Settings

	frames    atomic.Uint64
	lastFrame time.Time
}

// NewDriver creates a driver with no devices.
func NewDriver(cfg DriverConfig) *Driver {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Driver{
		host:     cfg.Host,
		source:   cfg.Source,
		clock:    clock,
		onDrop:   cfg.OnDrop,
		bySerial: make(map[string]*TrackerDevice),
		settings: cfg.Settings.Clamp(),
	}
}

// AddDevice registers an inactive device following segment. The role hint is
// resolved here, once.
func (d *Driver) AddDevice(serial string, segment mocap.Segment, role mocap.TrackerRole) (*TrackerDevice, error) {
	if !segment.Valid() {
		return nil, fmt.Errorf("add device %q: invalid segment %d", serial, int(segment))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bySerial[serial]; ok {
		return nil, fmt.Errorf("add device %q: %w", serial, ErrDuplicateDevice)
	}
	dev := New(Config{
		Serial:   serial,
		Segment:  segment,
		Role:     role,
		Source:   d.source,
		Settings: d.settings,
		Clock:    d.clock,
		OnDrop:   d.onDrop,
	})
	d.devices = append(d.devices, dev)
	d.bySerial[serial] = dev
	return dev, nil
}

// AddDevicesFromConfig registers every device in cfg.Devices.
func (d *Driver) AddDevicesFromConfig(cfg *config.BridgeConfig) error {
	for i, dc := range cfg.Devices {
		seg, err := mocap.ParseSegment(dc.Segment)
		if err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		role := mocap.DefaultRole(seg)
		if dc.Role != "" {
			if role, err = mocap.ParseRole(dc.Role); err != nil {
				return fmt.Errorf("devices[%d]: %w", i, err)
			}
		}
		if _, err := d.AddDevice(dc.SerialOrDefault(seg), seg, role); err != nil {
			return err
		}
	}
	return nil
}

// Activate assigns the device the next host index and starts publishing it.
// Re-activating keeps the original index.
func (d *Driver) Activate(serial string) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.bySerial[serial]
	if !ok {
		return 0, fmt.Errorf("activate %q: %w", serial, ErrUnknownDevice)
	}
	if st := dev.Status(); st.Active {
		return st.Index, nil
	}
	index := d.nextIndex
	d.nextIndex++
	dev.activate(index)
	log.Printf("[driver] activated %s (%s, %s) as device %d", serial, dev.Segment(), dev.RoleHint(), index)
	return index, nil
}

// ActivateAll activates every registered device in registration order.
func (d *Driver) ActivateAll() {
	for _, dev := range d.Devices() {
		if _, err := d.Activate(dev.Serial()); err != nil {
			log.Printf("[driver] %v", err)
		}
	}
}

// Deactivate stops publishing a device. Its history is kept.
func (d *Driver) Deactivate(serial string) error {
	dev, ok := d.Device(serial)
	if !ok {
		return fmt.Errorf("deactivate %q: %w", serial, ErrUnknownDevice)
	}
	dev.deactivate()
	return nil
}

// Device looks up a device by serial.
func (d *Driver) Device(serial string) (*TrackerDevice, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.bySerial[serial]
	return dev, ok
}

// Devices returns the registered devices in registration order.
func (d *Driver) Devices() []*TrackerDevice {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*TrackerDevice(nil), d.devices...)
}

// Identify makes a device vibrate for one haptic pulse.
func (d *Driver) Identify(serial string) error {
	dev, ok := d.Device(serial)
	if !ok {
		return fmt.Errorf("identify %q: %w", serial, ErrUnknownDevice)
	}
	dev.Vibrate()
	return nil
}

// Reconfigure clamps s and queues it on every device.
func (d *Driver) Reconfigure(s Settings) Settings {
	s = s.Clamp()
	d.mu.Lock()
	d.settings = s
	devices := append([]*TrackerDevice(nil), d.devices...)
	d.mu.Unlock()
	for _, dev := range devices {
		dev.Reconfigure(s)
	}
	return s
}

// Settings returns the settings most recently applied to the driver.
func (d *Driver) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// RunFrame updates every device once. frameTime is the duration of the
// previous frame.
func (d *Driver) RunFrame(frameTime time.Duration) {
	for _, dev := range d.Devices() {
		dev.Update(d.host, frameTime)
	}
	d.frames.Add(1)
}

// Frames returns how many frames have run.
func (d *Driver) Frames() uint64 {
	return d.frames.Load()
}

// Status returns a snapshot of every device.
func (d *Driver) Status() []Status {
	devices := d.Devices()
	out := make([]Status, len(devices))
	for i, dev := range devices {
		out[i] = dev.Status()
	}
	return out
}

// Run drives RunFrame at rateHz until ctx is cancelled. Frame time is
// measured on the driver's clock, so a late tick hands the devices the real
// gap.
func (d *Driver) Run(ctx context.Context, rateHz float64) error {
	if rateHz <= 0 {
		return fmt.Errorf("frame rate must be positive, got %f", rateHz)
	}
	period := time.Duration(float64(time.Second) / rateHz)
	ticker := d.clock.NewTicker(period)
	defer ticker.Stop()

	d.lastFrame = d.clock.Now()
	log.Printf("[driver] frame loop running at %.1f Hz with %d devices", rateHz, len(d.Devices()))
	for {
		select {
		case <-ctx.Done():
			log.Printf("[driver] frame loop stopped after %d frames", d.Frames())
			return ctx.Err()
		case now := <-ticker.C():
			frameTime := now.Sub(d.lastFrame)
			d.lastFrame = now
			d.RunFrame(frameTime)
		}
	}
}
