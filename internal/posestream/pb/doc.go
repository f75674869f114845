// Package pb holds the gRPC bindings for posestream.proto. Messages are the
// well-known google.protobuf.Struct, so only service stubs are generated.
package pb

//go:generate protoc --go-grpc_out=. --go-grpc_opt=paths=source_relative posestream.proto
