package posestream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/mocap.bridge/internal/posestream/pb"
	"github.com/banshee-data/mocap.bridge/internal/publish"
)

// Subscription is the client side of one Subscribe call.
type Subscription struct {
	stream pb.PoseStream_SubscribeClient
}

// Subscribe opens a pose stream on conn. With no serials every device is
// streamed.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, serials ...string) (*Subscription, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if len(serials) > 0 {
		vals := make([]*structpb.Value, len(serials))
		for i, s := range serials {
			vals[i] = structpb.NewStringValue(s)
		}
		req.Fields["serials"] = structpb.NewListValue(&structpb.ListValue{Values: vals})
	}
	stream, err := pb.NewPoseStreamClient(conn).Subscribe(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next pose.
func (s *Subscription) Recv() (publish.PoseMessage, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return publish.PoseMessage{}, err
	}
	return decodePose(msg)
}
