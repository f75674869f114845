package posestream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/mocap.bridge/internal/posestream/pb"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

func startPublisher(t *testing.T, cfg Config) (*Publisher, *grpc.ClientConn) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := NewPublisher(cfg)
	require.NoError(t, p.Serve(lis))
	t.Cleanup(p.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return p, conn
}

func poseAt(x float64) tracker.TrackerPose {
	p := tracker.NewTrackerPose()
	p.Position = r3.Vec{X: x}
	p.Status = tracker.StatusOK
	p.Valid = true
	p.Timestamp = time.Unix(1_700_000_000, 123_456_789)
	return p
}

func waitClients(t *testing.T, p *Publisher, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return p.Stats().Clients == n }, 2*time.Second, 5*time.Millisecond)
}

func TestEncodeDecodePose(t *testing.T) {
	m := publish.NewPoseMessage(3, "mocap_hips", poseAt(1.5))
	s, err := encodePose(m)
	require.NoError(t, err)
	assert.Equal(t, "mocap_hips", s.GetFields()["serial"].GetStringValue())

	got, err := decodePose(s)
	require.NoError(t, err)
	assert.Equal(t, m, got, "nanosecond timestamps survive the Struct encoding")
}

func TestRequestSerials(t *testing.T) {
	got, err := requestSerials(&structpb.Struct{})
	require.NoError(t, err)
	assert.Nil(t, got)

	req, err := structpb.NewStruct(map[string]interface{}{"serials": []interface{}{"a", "b"}})
	require.NoError(t, err)
	got, err = requestSerials(req)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)

	bad, err := structpb.NewStruct(map[string]interface{}{"serials": "a"})
	require.NoError(t, err)
	_, err = requestSerials(bad)
	assert.Error(t, err)

	bad, err = structpb.NewStruct(map[string]interface{}{"serials": []interface{}{1.0}})
	require.NoError(t, err)
	_, err = requestSerials(bad)
	assert.Error(t, err)
}

func TestPublisher_StreamsPoses(t *testing.T) {
	p, conn := startPublisher(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	waitClients(t, p, 1)

	p.PublishPose(0, "mocap_hips", poseAt(1))
	p.PublishPose(1, "mocap_left_foot", poseAt(2))

	first, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "mocap_hips", first.Serial)
	assert.Equal(t, 1.0, first.Position[0])

	second, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), second.Index)
	assert.Equal(t, int64(1_700_000_000_123_456_789), second.Timestamp)

	cancel()
	waitClients(t, p, 0)
	assert.Equal(t, uint64(2), p.Stats().Poses)
}

func TestPublisher_SerialFilter(t *testing.T) {
	p, conn := startPublisher(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, conn, "mocap_left_foot")
	require.NoError(t, err)
	waitClients(t, p, 1)

	p.PublishPose(0, "mocap_hips", poseAt(1))
	p.PublishPose(1, "mocap_left_foot", poseAt(2))

	got, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "mocap_left_foot", got.Serial)
}

func TestPublisher_RejectsBadFilter(t *testing.T) {
	_, conn := startPublisher(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := structpb.NewStruct(map[string]interface{}{"serials": "mocap_hips"})
	require.NoError(t, err)
	stream, err := pb.NewPoseStreamClient(conn).Subscribe(ctx, req)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPublisher_MaxClients(t *testing.T) {
	p, conn := startPublisher(t, Config{MaxClients: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	waitClients(t, p, 1)

	second, err := Subscribe(ctx, conn)
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestPublisher_NotRunning(t *testing.T) {
	p := NewPublisher(DefaultConfig())
	p.PublishPose(0, "x", poseAt(0))
	assert.Equal(t, Stats{}, p.Stats())
	assert.Nil(t, p.Addr())
	p.Stop()
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	p := NewPublisher(Config{QueueSize: 1})
	p.running.Store(true)
	p.PublishPose(0, "x", poseAt(0))
	p.PublishPose(0, "x", poseAt(0))
	assert.Equal(t, uint64(1), p.Stats().Poses)
	assert.Equal(t, uint64(1), p.Stats().Dropped)
}
