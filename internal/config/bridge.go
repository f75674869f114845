package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
)

// DefaultConfigPath is the path to the canonical bridge defaults file.
const DefaultConfigPath = "config/bridge.defaults.json"

// Source kinds.
const (
	SourceUDP    = "udp"
	SourceSerial = "serial"
	SourceMock   = "mock"
	SourcePCAP   = "pcap"
)

// Fallbacks used by the Get* accessors when a field is omitted.
const (
	DefaultHistoryCapacity = 10
	DefaultMaxAgeSeconds   = 0.3
	DefaultSmoothing       = 0.5
	DefaultFrameRateHz     = 90.0
	DefaultSourceKind      = SourceUDP
	DefaultSourceAddress   = ":7004"
	DefaultMQTTTopic       = "mocap/poses"
	DefaultSampleEvery     = 10
)

// BridgeConfig is the root configuration. Pointer fields distinguish
// "omitted" from zero so partial files fall back to defaults. The pipeline
// section mirrors the body accepted by POST /api/config.
type BridgeConfig struct {
	// Pipeline params
	HistoryCapacity      *int          `json:"history_capacity,omitempty"`
	MaxAgeSeconds        *float64      `json:"max_age_seconds,omitempty"`
	SmoothingFactor      *float64      `json:"smoothing_factor,omitempty"`
	RequestOffsetSeconds *float64      `json:"request_offset_seconds,omitempty"`
	Origin               *OriginConfig `json:"origin,omitempty"`

	// Frame loop
	FrameRateHz *float64 `json:"frame_rate_hz,omitempty"`

	Source  *SourceConfig  `json:"source,omitempty"`
	Devices []DeviceConfig `json:"devices,omitempty"`

	MQTT   *MQTTConfig   `json:"mqtt,omitempty"`
	Record *RecordConfig `json:"record,omitempty"`
}

// OriginConfig is the world transform applied to every tracker.
type OriginConfig struct {
	Translation [3]float64 `json:"translation"`
	Yaw         float64    `json:"yaw"`
}

// SourceConfig selects where skeleton frames come from.
type SourceConfig struct {
	Kind       string  `json:"kind,omitempty"`
	Address    string  `json:"address,omitempty"`
	RcvBuf     int     `json:"rcv_buf,omitempty"`
	SerialPath string  `json:"serial_path,omitempty"`
	Baud       int     `json:"baud,omitempty"`
	PCAPFile   string  `json:"pcap_file,omitempty"`
	PCAPPort   int     `json:"pcap_port,omitempty"`
	Realtime   bool    `json:"realtime,omitempty"`
	MockRateHz float64 `json:"mock_rate_hz,omitempty"`
}

// DeviceConfig declares one tracker. Role may be empty to use the segment's
// default role; Serial may be empty to derive one from the segment.
type DeviceConfig struct {
	Serial  string `json:"serial,omitempty"`
	Segment string `json:"segment"`
	Role    string `json:"role,omitempty"`
}

// MQTTConfig enables publishing poses to a broker.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	QoS      byte   `json:"qos,omitempty"`
}

// RecordConfig controls what the sqlite recorder keeps.
type RecordConfig struct {
	Enabled     bool `json:"enabled"`
	SampleEvery int  `json:"sample_every,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyBridgeConfig returns a BridgeConfig with all fields unset.
func EmptyBridgeConfig() *BridgeConfig {
	return &BridgeConfig{}
}

// DefaultBridgeConfig returns a config with every scalar set explicitly.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		HistoryCapacity:      ptrInt(DefaultHistoryCapacity),
		MaxAgeSeconds:        ptrFloat64(DefaultMaxAgeSeconds),
		SmoothingFactor:      ptrFloat64(DefaultSmoothing),
		RequestOffsetSeconds: ptrFloat64(0),
		FrameRateHz:          ptrFloat64(DefaultFrameRateHz),
		Origin:               &OriginConfig{},
		Source:               &SourceConfig{Kind: DefaultSourceKind, Address: DefaultSourceAddress},
	}
}

// LoadBridgeConfig loads a BridgeConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Omitted fields keep their defaults
// through the Get* accessors.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBridgeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or a parent. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *BridgeConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../"} {
		if cfg, err := LoadBridgeConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects values that cannot be clamped into meaning: unknown
// source kinds, device segments or roles, and duplicate device serials.
// Pipeline numbers outside their ranges are clamped later, not rejected.
func (c *BridgeConfig) Validate() error {
	if c.FrameRateHz != nil && *c.FrameRateHz <= 0 {
		return fmt.Errorf("frame_rate_hz must be positive, got %f", *c.FrameRateHz)
	}
	if c.Source != nil {
		switch kind := strings.ToLower(c.Source.Kind); kind {
		case "", SourceUDP, SourceMock:
		case SourceSerial:
			if c.Source.SerialPath == "" {
				return fmt.Errorf("source.serial_path is required for serial sources")
			}
		case SourcePCAP:
			if c.Source.PCAPFile == "" {
				return fmt.Errorf("source.pcap_file is required for pcap sources")
			}
		default:
			return fmt.Errorf("unknown source kind %q", c.Source.Kind)
		}
	}

	seen := make(map[string]bool)
	for i, d := range c.Devices {
		seg, err := mocap.ParseSegment(d.Segment)
		if err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, err := mocap.ParseRole(d.Role); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		serial := d.SerialOrDefault(seg)
		if seen[serial] {
			return fmt.Errorf("devices[%d]: duplicate serial %q", i, serial)
		}
		seen[serial] = true
	}

	if c.MQTT != nil && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is configured")
	}
	if c.MQTT != nil && c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// SerialOrDefault returns the configured serial, or one derived from the
// segment name.
func (d DeviceConfig) SerialOrDefault(seg mocap.Segment) string {
	if d.Serial != "" {
		return d.Serial
	}
	return "mocap_" + seg.String()
}

// GetHistoryCapacity returns the configured history size. Values below the
// tracker minimum are clamped by the consumer.
func (c *BridgeConfig) GetHistoryCapacity() int {
	if c.HistoryCapacity == nil {
		return DefaultHistoryCapacity
	}
	return *c.HistoryCapacity
}

func (c *BridgeConfig) GetMaxAgeSeconds() float64 {
	if c.MaxAgeSeconds == nil {
		return DefaultMaxAgeSeconds
	}
	return *c.MaxAgeSeconds
}

func (c *BridgeConfig) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return DefaultSmoothing
	}
	return *c.SmoothingFactor
}

func (c *BridgeConfig) GetRequestOffsetSeconds() float64 {
	if c.RequestOffsetSeconds == nil {
		return 0
	}
	return *c.RequestOffsetSeconds
}

func (c *BridgeConfig) GetFrameRateHz() float64 {
	if c.FrameRateHz == nil {
		return DefaultFrameRateHz
	}
	return *c.FrameRateHz
}

func (c *BridgeConfig) GetOrigin() OriginConfig {
	if c.Origin == nil {
		return OriginConfig{}
	}
	return *c.Origin
}

// GetSource returns the source section with kind and address defaulted.
func (c *BridgeConfig) GetSource() SourceConfig {
	var s SourceConfig
	if c.Source != nil {
		s = *c.Source
	}
	s.Kind = strings.ToLower(s.Kind)
	if s.Kind == "" {
		s.Kind = DefaultSourceKind
	}
	if s.Address == "" {
		s.Address = DefaultSourceAddress
	}
	return s
}

// GetMQTT returns the MQTT section with topic defaulted, or nil when MQTT is
// not configured.
func (c *BridgeConfig) GetMQTT() *MQTTConfig {
	if c.MQTT == nil {
		return nil
	}
	m := *c.MQTT
	if m.Topic == "" {
		m.Topic = DefaultMQTTTopic
	}
	if m.ClientID == "" {
		m.ClientID = "mocap-bridge"
	}
	return &m
}

// GetRecord returns the recorder section. Recording is off unless enabled.
func (c *BridgeConfig) GetRecord() RecordConfig {
	if c.Record == nil {
		return RecordConfig{SampleEvery: DefaultSampleEvery}
	}
	r := *c.Record
	if r.SampleEvery <= 0 {
		r.SampleEvery = DefaultSampleEvery
	}
	return r
}
