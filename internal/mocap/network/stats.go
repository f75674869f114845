package network

import (
	"log"
	"sync"
	"time"
)

// StatsSnapshot is the rate summary of one logging interval.
type StatsSnapshot struct {
	PacketsPerSec float64   `json:"packets_per_sec"`
	KBPerSec      float64   `json:"kb_per_sec"`
	FramesPerSec  float64   `json:"frames_per_sec"`
	DroppedCount  int64     `json:"dropped"`
	Timestamp     time.Time `json:"timestamp"`
}

// PacketStatsInterface receives ingestion counters from a listener or reader.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddFrame()
	LogStats()
}

// PacketStats counts packets, decoded frames and undecodable payloads.
type PacketStats struct {
	mu           sync.Mutex
	name         string
	packetCount  int64
	byteCount    int64
	droppedCount int64
	frameCount   int64
	totalFrames  int64
	lastReset    time.Time
	startTime    time.Time
	latest       *StatsSnapshot
}

// NewPacketStats creates a PacketStats whose log lines are tagged with name.
func NewPacketStats(name string) *PacketStats {
	now := time.Now()
	return &PacketStats{name: name, lastReset: now, startTime: now}
}

// AddPacket counts one received payload.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped counts a payload that could not be decoded.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddFrame counts a decoded frame.
func (ps *PacketStats) AddFrame() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frameCount++
	ps.totalFrames++
}

// TotalFrames returns the number of frames decoded since creation.
func (ps *PacketStats) TotalFrames() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.totalFrames
}

// LogStats logs rates since the previous call and stores them for Latest.
func (ps *PacketStats) LogStats() {
	ps.mu.Lock()
	now := time.Now()
	secs := now.Sub(ps.lastReset).Seconds()
	packets, bytes, dropped, frames := ps.packetCount, ps.byteCount, ps.droppedCount, ps.frameCount
	ps.packetCount, ps.byteCount, ps.droppedCount, ps.frameCount = 0, 0, 0, 0
	ps.lastReset = now
	if secs <= 0 || (packets == 0 && dropped == 0) {
		ps.mu.Unlock()
		return
	}
	snap := StatsSnapshot{
		PacketsPerSec: float64(packets) / secs,
		KBPerSec:      float64(bytes) / secs / 1024,
		FramesPerSec:  float64(frames) / secs,
		DroppedCount:  dropped,
		Timestamp:     now,
	}
	ps.latest = &snap
	ps.mu.Unlock()

	if dropped > 0 {
		log.Printf("[%s] %.1f packets/s, %.1f frames/s, %.1f KB/s, %d undecodable",
			ps.name, snap.PacketsPerSec, snap.FramesPerSec, snap.KBPerSec, dropped)
		return
	}
	log.Printf("[%s] %.1f packets/s, %.1f frames/s, %.1f KB/s",
		ps.name, snap.PacketsPerSec, snap.FramesPerSec, snap.KBPerSec)
}

// Latest returns a copy of the most recent logged snapshot, or nil.
func (ps *PacketStats) Latest() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latest == nil {
		return nil
	}
	s := *ps.latest
	return &s
}

// Uptime returns the time since the stats were created.
func (ps *PacketStats) Uptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// noopStats is the default when no collector is supplied.
type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddDropped()   {}
func (noopStats) AddFrame()     {}
func (noopStats) LogStats()     {}
