package publish

import (
	"reflect"
	"sync"

	"github.com/banshee-data/mocap.bridge/internal/device"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// Fanout is a device.Host that forwards every pose to each registered sink
// in order. Sinks must not block; slow outputs queue internally.
type Fanout struct {
	mu    sync.RWMutex
	sinks []device.Host
}

// NewFanout returns a fanout over sinks. Nil sinks, including typed nil
// pointers such as an unconfigured *MQTTPublisher, are skipped.
func NewFanout(sinks ...device.Host) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers another sink. Nil sinks are ignored.
func (f *Fanout) Add(s device.Host) {
	if isNil(s) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// PublishPose implements device.Host.
func (f *Fanout) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.PublishPose(index, serial, pose)
	}
}

func isNil(s device.Host) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
