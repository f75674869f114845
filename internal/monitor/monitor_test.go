package monitor

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/mocap.bridge/internal/db"
	"github.com/banshee-data/mocap.bridge/internal/device"
	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/monitoring"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/testutil"
	"github.com/banshee-data/mocap.bridge/internal/timeutil"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

func init() {
	monitoring.SetLogger(nil)
}

type fixture struct {
	server *Server
	driver *device.Driver
	snap   *mocap.Snapshot
	clock  *timeutil.MockClock
	traces *Traces
}

func newFixture(t *testing.T, database *db.DB) *fixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	snap := mocap.NewSnapshot(clock)
	traces := NewTraces(0)
	driver := device.NewDriver(device.DriverConfig{
		Host:     traces,
		Source:   snap,
		Settings: device.Settings{HistoryCapacity: 10, MaxAgeSeconds: 0.3},
		Clock:    clock,
	})
	_, err := driver.AddDevice("mocap_left_foot", mocap.LeftFoot, mocap.RoleLeftFoot)
	require.NoError(t, err)
	driver.ActivateAll()

	s, err := NewServer(Config{Address: "127.0.0.1:0", Controller: driver, Traces: traces, DB: database})
	require.NoError(t, err)
	return &fixture{server: s, driver: driver, snap: snap, clock: clock, traces: traces}
}

// walk feeds n frames of the left foot moving along X at 1 m/s.
func (f *fixture) walk(n int) {
	for i := 0; i < n; i++ {
		f.snap.Queue(testutil.SkeletonFrame(mocap.LeftFoot, r3.Vec{X: 0.01 * float64(i), Y: 0.1}))
		f.driver.RunFrame(10 * time.Millisecond)
		f.clock.Advance(10 * time.Millisecond)
	}
}

func TestNewServer_RequiresController(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := testutil.Serve(t, f.server.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, testutil.DecodeJSON[map[string]string](t, rec))
}

// statusBody mirrors StatusResponse with the enum fields as plain strings.
type statusBody struct {
	Frames   uint64          `json:"frames"`
	Settings device.Settings `json:"settings"`
	Devices  []struct {
		Serial        string `json:"serial"`
		Segment       string `json:"segment"`
		Role          string `json:"role"`
		RoleHint      string `json:"role_hint"`
		Active        bool   `json:"active"`
		HistoryLen    int    `json:"history_len"`
		PredictStatus string `json:"predict_status"`
	} `json:"devices"`
	Outputs map[string]map[string]any `json:"outputs"`
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.server.AddStats("mqtt", func() any { return publish.MQTTStats{Published: 7} })
	f.walk(6)

	rec := testutil.Serve(t, f.server.Handler(), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := testutil.DecodeJSON[statusBody](t, rec)

	assert.Equal(t, uint64(6), resp.Frames)
	assert.Equal(t, 10, resp.Settings.HistoryCapacity)
	require.Len(t, resp.Devices, 1)
	d := resp.Devices[0]
	assert.Equal(t, "mocap_left_foot", d.Serial)
	assert.Equal(t, "left_foot", d.Segment)
	assert.Equal(t, "left_foot", d.Role)
	assert.Equal(t, "vive_tracker_left_foot", d.RoleHint)
	assert.True(t, d.Active)
	assert.Equal(t, 6, d.HistoryLen)
	assert.Equal(t, "ok", d.PredictStatus)
	assert.Equal(t, 7.0, resp.Outputs["mqtt"]["published"])
	assert.Contains(t, resp.Outputs, "websocket")
}

func TestHandleConfig(t *testing.T) {
	f := newFixture(t, nil)
	h := f.server.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, testutil.DecodeJSON[device.Settings](t, rec).HistoryCapacity)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/config", `{"history_capacity": 2, "smoothing_factor": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	applied := testutil.DecodeJSON[device.Settings](t, rec)
	assert.Equal(t, tracker.MinCapacity, applied.HistoryCapacity, "clamped, not rejected")
	assert.Equal(t, device.MaxSmoothing, applied.SmoothingFactor)
	assert.Equal(t, 0.3, applied.MaxAgeSeconds, "omitted fields keep their value")
	assert.Equal(t, applied, f.driver.Settings())

	rec = testutil.Serve(t, h, http.MethodPost, "/api/config", `{"origin": {"yaw": 1.5}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.5, f.driver.Settings().Origin.Yaw)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/config", `{"bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/config", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(t, h, http.MethodDelete, "/api/config", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleIdentify(t *testing.T) {
	f := newFixture(t, nil)
	h := f.server.Handler()

	rec := testutil.Serve(t, h, http.MethodPost, "/api/devices/mocap_left_foot/identify", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.driver.RunFrame(0)
	assert.Equal(t, "vibrating", f.driver.Status()[0].Haptic)

	rec = testutil.Serve(t, h, http.MethodPost, "/api/devices/nope/identify", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePoses(t *testing.T) {
	f := newFixture(t, nil)
	rec := testutil.Serve(t, f.server.Handler(), http.MethodGet, "/api/poses", nil)
	assert.Empty(t, testutil.DecodeJSON[[]publish.PoseMessage](t, rec))

	f.walk(3)
	rec = testutil.Serve(t, f.server.Handler(), http.MethodGet, "/api/poses", nil)
	poses := testutil.DecodeJSON[[]publish.PoseMessage](t, rec)
	require.Len(t, poses, 1)
	assert.InDelta(t, 0.02, poses[0].Position[0], 1e-6)
}

func TestDebugCharts(t *testing.T) {
	f := newFixture(t, nil)
	h := f.server.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/debug/charts/velocity", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testutil.Serve(t, h, http.MethodGet, "/debug/plot/trace.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.walk(20)

	rec = testutil.Serve(t, h, http.MethodGet, "/debug/charts/velocity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Tracker velocity")
	assert.Contains(t, rec.Body.String(), "mocap_left_foot")

	rec = testutil.Serve(t, h, http.MethodGet, "/debug/plot/trace.png?serial=mocap_left_foot&axes=xy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = testutil.Serve(t, h, http.MethodGet, "/debug/plot/trace.png?axes=w", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(t, h, http.MethodGet, "/debug/charts/velocity?serial=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPoseHub_Websocket(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/poses"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.server.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	pose := tracker.NewTrackerPose()
	pose.Position = r3.Vec{Z: 2}
	f.server.hub.PublishPose(5, "mocap_head", pose)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got publish.PoseMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "mocap_head", got.Serial)
	assert.Equal(t, uint32(5), got.Index)
	assert.Equal(t, 2.0, got.Position[2])

	conn.Close()
	require.Eventually(t, func() bool { return f.server.hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), f.server.hub.Stats().Sent)
}

func TestPoseHub_NoClients(t *testing.T) {
	h := NewPoseHub()
	h.PublishPose(0, "x", tracker.NewTrackerPose())
	assert.Equal(t, HubStats{}, h.Stats())
	h.Close()
}

func TestHandleSessions(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "monitor.db"))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.StartSession(time.Unix(100, 0), "mock", "", "")
	require.NoError(t, err)
	latest, err := database.StartSession(time.Unix(200, 0), "udp", "", "")
	require.NoError(t, err)

	f := newFixture(t, database)
	h := f.server.Handler()

	rec := testutil.Serve(t, h, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := testutil.DecodeJSON[[]map[string]any](t, rec)
	require.Len(t, sessions, 2)
	assert.Equal(t, latest.ID, sessions[0]["session_id"])

	rec = testutil.Serve(t, h, http.MethodGet, "/api/sessions?limit=1", nil)
	assert.Len(t, testutil.DecodeJSON[[]map[string]any](t, rec), 1)

	rec = testutil.Serve(t, h, http.MethodGet, "/api/sessions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsRouteNeedsDB(t *testing.T) {
	f := newFixture(t, nil)
	rec := testutil.Serve(t, f.server.Handler(), http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraces(t *testing.T) {
	tr := NewTraces(3)
	assert.Nil(t, tr.Trace("a"))
	assert.Empty(t, tr.Latest())

	for i := 0; i < 5; i++ {
		p := tracker.NewTrackerPose()
		p.Position = r3.Vec{X: float64(i)}
		tr.PublishPose(0, "b", p)
	}
	tr.PublishPose(1, "a", tracker.NewTrackerPose())

	trace := tr.Trace("b")
	require.Len(t, trace, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{trace[0].Position[0], trace[1].Position[0], trace[2].Position[0]})

	latest := tr.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "a", latest[0].Serial)
	assert.Equal(t, 4.0, latest[1].Position[0])
	assert.Equal(t, []string{"a", "b"}, tr.Serials())
}
