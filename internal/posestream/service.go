package posestream

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/mocap.bridge/internal/publish"
)

// encodePose converts a pose message to its Struct form.
func encodePose(m publish.PoseMessage) (*structpb.Struct, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode pose: %w", err)
	}
	return out, nil
}

// decodePose converts a streamed Struct back to a pose message.
func decodePose(s *structpb.Struct) (publish.PoseMessage, error) {
	var m publish.PoseMessage
	b, err := protojson.Marshal(s)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode pose: %w", err)
	}
	return m, nil
}

// requestSerials extracts the optional serial filter.
func requestSerials(req *structpb.Struct) (map[string]bool, error) {
	v, ok := req.GetFields()["serials"]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("serials must be a list")
	}
	out := make(map[string]bool, len(list.GetValues()))
	for _, item := range list.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("serials must contain strings")
		}
		out[s.StringValue] = true
	}
	return out, nil
}
