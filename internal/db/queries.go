package db

import (
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PoseRow is one recorded pose.
type PoseRow struct {
	Serial    string
	Index     uint32
	Timestamp time.Time
	Status    string
	Valid     bool
	Position  r3.Vec
	Rotation  quat.Number
	Velocity  r3.Vec
}

// Poses returns the recorded poses for a device in time order. limit <= 0
// returns every row.
func (db *DB) Poses(sessionID, serial string, limit int) ([]PoseRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT serial, device_index, timestamp_ns, status, valid,
		       px, py, pz, qw, qx, qy, qz, vx, vy, vz
		FROM published_poses
		WHERE session_id = ? AND serial = ?
		ORDER BY timestamp_ns, pose_id
		LIMIT ?`, sessionID, serial, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoseRow
	for rows.Next() {
		var (
			p  PoseRow
			ts int64
		)
		if err := rows.Scan(&p.Serial, &p.Index, &ts, &p.Status, &p.Valid,
			&p.Position.X, &p.Position.Y, &p.Position.Z,
			&p.Rotation.Real, &p.Rotation.Imag, &p.Rotation.Jmag, &p.Rotation.Kmag,
			&p.Velocity.X, &p.Velocity.Y, &p.Velocity.Z); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(0, ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordedSerials lists the devices with poses in a session.
func (db *DB) RecordedSerials(sessionID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT serial FROM published_poses WHERE session_id = ? ORDER BY serial`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DropCounts tallies rejected samples per reason for a session.
func (db *DB) DropCounts(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT reason, COUNT(*) FROM dropped_samples WHERE session_id = ? GROUP BY reason`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}
