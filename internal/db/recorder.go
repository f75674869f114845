package db

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/timeutil"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	SessionID string
	// SampleEvery keeps one published pose in N per device. Drops are
	// always kept.
	SampleEvery   int
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	Clock         timeutil.Clock
}

// RecorderStats counts recorder outcomes.
type RecorderStats struct {
	Poses    uint64 `json:"poses"`
	Drops    uint64 `json:"drops"`
	Overflow uint64 `json:"overflow"`
	Errors   uint64 `json:"errors"`
}

type record struct {
	serial string
	index  uint32
	pose   *tracker.TrackerPose
	drop   *tracker.Drop
	at     time.Time
}

// Recorder writes poses and drops for one session. PublishPose and
// RecordDrop only enqueue; Run owns the database writes.
type Recorder struct {
	db      *DB
	session string
	every   int
	batch   int
	flush   time.Duration
	clock   timeutil.Clock
	queue   chan record

	mu      sync.Mutex
	counter map[string]int

	poses    atomic.Uint64
	drops    atomic.Uint64
	overflow atomic.Uint64
	errors   atomic.Uint64
}

// NewRecorder creates a recorder for an existing session.
func NewRecorder(db *DB, cfg RecorderConfig) *Recorder {
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Recorder{
		db:      db,
		session: cfg.SessionID,
		every:   cfg.SampleEvery,
		batch:   cfg.BatchSize,
		flush:   cfg.FlushInterval,
		clock:   cfg.Clock,
		queue:   make(chan record, cfg.QueueSize),
		counter: make(map[string]int),
	}
}

// PublishPose implements device.Host.
func (r *Recorder) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	r.mu.Lock()
	n := r.counter[serial]
	r.counter[serial] = n + 1
	r.mu.Unlock()
	if n%r.every != 0 {
		return
	}
	r.enqueue(record{serial: serial, index: index, pose: &pose, at: pose.Timestamp})
}

// RecordDrop matches device.DropFunc.
func (r *Recorder) RecordDrop(serial string, drop tracker.Drop) {
	r.enqueue(record{serial: serial, drop: &drop, at: r.clock.Now()})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		if r.overflow.Add(1)%1000 == 1 {
			log.Printf("[recorder] queue full, %d records discarded", r.overflow.Load())
		}
	}
}

// Run writes queued records in batches until ctx is cancelled, then flushes
// what is left.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.flush)
	defer ticker.Stop()

	pending := make([]record, 0, r.batch)
	write := func() {
		if len(pending) == 0 {
			return
		}
		if err := r.writeBatch(pending); err != nil {
			r.errors.Add(1)
			log.Printf("[recorder] failed to write %d records: %v", len(pending), err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					pending = append(pending, rec)
					if len(pending) >= r.batch {
						write()
					}
				default:
					write()
					return nil
				}
			}
		case rec := <-r.queue:
			pending = append(pending, rec)
			if len(pending) >= r.batch {
				write()
			}
		case <-ticker.C():
			write()
		}
	}
}

func (r *Recorder) writeBatch(recs []record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	poseStmt, err := tx.Prepare(`
		INSERT INTO published_poses (
			session_id, serial, device_index, timestamp_ns, status, valid,
			px, py, pz, qw, qx, qy, qz, vx, vy, vz
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer poseStmt.Close()

	dropStmt, err := tx.Prepare(`
		INSERT INTO dropped_samples (
			session_id, serial, timestamp_ns, reason, age_seconds, distance,
			px, py, pz, predicted_x, predicted_y, predicted_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer dropStmt.Close()

	var poses, drops uint64
	for _, rec := range recs {
		switch {
		case rec.pose != nil:
			p := rec.pose
			_, err = poseStmt.Exec(r.session, rec.serial, rec.index, rec.at.UnixNano(), p.Status.String(), p.Valid,
				p.Position.X, p.Position.Y, p.Position.Z,
				p.Rotation.Real, p.Rotation.Imag, p.Rotation.Jmag, p.Rotation.Kmag,
				p.Velocity.X, p.Velocity.Y, p.Velocity.Z)
			poses++
		case rec.drop != nil:
			d := rec.drop
			_, err = dropStmt.Exec(r.session, rec.serial, rec.at.UnixNano(), d.Reason.String(), d.Sample.Age, d.Distance,
				d.Sample.Position.X, d.Sample.Position.Y, d.Sample.Position.Z,
				d.Predicted.X, d.Predicted.Y, d.Predicted.Z)
			drops++
		}
		if err != nil {
			return fmt.Errorf("insert %s record: %w", rec.serial, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.poses.Add(poses)
	r.drops.Add(drops)
	return nil
}

// Stats returns current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Poses:    r.poses.Load(),
		Drops:    r.drops.Load(),
		Overflow: r.overflow.Load(),
		Errors:   r.errors.Load(),
	}
}
