package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testPose(x float64, ts time.Time) tracker.TrackerPose {
	p := tracker.NewTrackerPose()
	p.Position = r3.Vec{X: x, Y: 1}
	p.Velocity = r3.Vec{X: 0.25}
	p.Status = tracker.StatusOK
	p.Valid = true
	p.Timestamp = ts
	return p
}

func runRecorder(t *testing.T, r *Recorder, feed func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	feed()
	cancel()
	require.NoError(t, <-done)
}

func TestNewDB_Migrates(t *testing.T) {
	db := newTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	again, err := NewDB(db.Path())
	require.NoError(t, err)
	again.Close()
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	_, err = db.Exec(`SELECT COUNT(*) FROM published_poses`)
	assert.Error(t, err)
	require.NoError(t, db.MigrateUp())
}

func TestSessions(t *testing.T) {
	db := newTestDB(t)
	start := time.Unix(1_700_000_000, 0)

	first, err := db.StartSession(start, "udp", "", "first")
	require.NoError(t, err)
	second, err := db.StartSession(start.Add(time.Minute), "mock", `{"frame_rate_hz":90}`, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, db.EndSession(first.ID, start.Add(30*time.Second)))
	assert.ErrorIs(t, db.EndSession("missing", start), ErrSessionNotFound)

	got, err := db.Session(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "udp", got.SourceKind)
	assert.Equal(t, "{}", got.ConfigJSON)
	require.NotNil(t, got.Ended)
	assert.True(t, got.Ended.Equal(start.Add(30*time.Second)))

	_, err = db.Session("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list, err := db.Sessions(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Nil(t, list[0].Ended)
}

func TestRecorder_WritesPosesAndDrops(t *testing.T) {
	db := newTestDB(t)
	session, err := db.StartSession(time.Now(), "mock", "", "")
	require.NoError(t, err)

	r := NewRecorder(db, RecorderConfig{SessionID: session.ID, BatchSize: 3})
	base := time.Unix(1_700_000_000, 0)
	runRecorder(t, r, func() {
		for i := 0; i < 5; i++ {
			r.PublishPose(2, "mocap_hips", testPose(float64(i), base.Add(time.Duration(i)*time.Millisecond)))
		}
		r.RecordDrop("mocap_hips", tracker.Drop{
			Reason:    tracker.InsertOutlier,
			Sample:    tracker.Sample{Age: 0.01, Position: r3.Vec{X: 3}},
			Predicted: r3.Vec{X: 1},
			Distance:  2,
		})
		r.RecordDrop("mocap_hips", tracker.Drop{Reason: tracker.InsertOutOfBounds, Distance: 12})
	})

	assert.Equal(t, RecorderStats{Poses: 5, Drops: 2}, r.Stats())

	poses, err := db.Poses(session.ID, "mocap_hips", 0)
	require.NoError(t, err)
	require.Len(t, poses, 5)
	for i, p := range poses {
		assert.Equal(t, float64(i), p.Position.X)
		assert.Equal(t, uint32(2), p.Index)
		assert.True(t, p.Valid)
		assert.Equal(t, "ok", p.Status)
		assert.Equal(t, 1.0, p.Rotation.Real)
		assert.Equal(t, 0.25, p.Velocity.X)
	}
	assert.True(t, poses[4].Timestamp.Equal(base.Add(4*time.Millisecond)))

	limited, err := db.Poses(session.ID, "mocap_hips", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	counts, err := db.DropCounts(session.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"outlier": 1, "out_of_bounds": 1}, counts)

	serials, err := db.RecordedSerials(session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mocap_hips"}, serials)
}

func TestRecorder_SampleEvery(t *testing.T) {
	db := newTestDB(t)
	session, err := db.StartSession(time.Now(), "mock", "", "")
	require.NoError(t, err)

	r := NewRecorder(db, RecorderConfig{SessionID: session.ID, SampleEvery: 4})
	base := time.Unix(1_700_000_000, 0)
	runRecorder(t, r, func() {
		for i := 0; i < 10; i++ {
			ts := base.Add(time.Duration(i) * time.Millisecond)
			r.PublishPose(0, "a", testPose(float64(i), ts))
			r.PublishPose(1, "b", testPose(float64(i), ts))
		}
	})

	for _, serial := range []string{"a", "b"} {
		poses, err := db.Poses(session.ID, serial, 0)
		require.NoError(t, err)
		require.Len(t, poses, 3, "poses 0, 4 and 8 for %s", serial)
		assert.Equal(t, 4.0, poses[1].Position.X)
	}
}

func TestRecorder_Overflow(t *testing.T) {
	db := newTestDB(t)
	r := NewRecorder(db, RecorderConfig{SessionID: "none", QueueSize: 2})
	for i := 0; i < 5; i++ {
		r.RecordDrop("a", tracker.Drop{Reason: tracker.InsertTooLate})
	}
	assert.Equal(t, uint64(3), r.Stats().Overflow)
}

func TestRecorder_WriteErrorCounted(t *testing.T) {
	db := newTestDB(t)
	// No session row exists, so the foreign key rejects the batch.
	r := NewRecorder(db, RecorderConfig{SessionID: "missing"})
	runRecorder(t, r, func() {
		r.PublishPose(0, "a", testPose(0, time.Now()))
	})
	assert.Equal(t, uint64(1), r.Stats().Errors)
	assert.Zero(t, r.Stats().Poses)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}
