// Package capture defines the gRPC-shaped message and service types for the
// controller's packet fan-out surface, written out by hand instead of
// generated by protoc — the same approach the project's own pb package
// takes for its mock service types.
package capture

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Direction mirrors ringproto.Direction* for wire clients that don't import
// the internal ring package.
type Direction int32

const (
	Direction_INBOUND  Direction = 0
	Direction_OUTBOUND Direction = 1
)

// CapturedPacket is one packet pulled off a target's ring, shaped for
// external consumers.
type CapturedPacket struct {
	SessionId string
	Pid       uint32
	Direction Direction
	Opcode    uint32
	Data      []byte
	Timestamp *timestamppb.Timestamp
}

// SubscribeRequest opens a capture stream, optionally scoped to one pid; a
// zero Pid subscribes to every currently attached target.
type SubscribeRequest struct {
	Pid uint32
}

// TargetInfo describes one discoverable or attached client, surfaced by
// ListTargets.
type TargetInfo struct {
	Pid         uint32
	WindowTitle string
	Build       uint32
	VersionName string
	Attached    bool
}

type ListTargetsRequest struct{}

type ListTargetsResponse struct {
	Targets []*TargetInfo
}

// CaptureStreamServer is the service a controller implements; Subscribe is
// a server-streaming RPC delivering CapturedPacket messages as they arrive.
type CaptureStreamServer interface {
	Subscribe(*SubscribeRequest, CaptureStream_SubscribeServer) error
	ListTargets(context.Context, *ListTargetsRequest) (*ListTargetsResponse, error)
}

type UnimplementedCaptureStreamServer struct{}

func (UnimplementedCaptureStreamServer) Subscribe(*SubscribeRequest, CaptureStream_SubscribeServer) error {
	return nil
}

func (UnimplementedCaptureStreamServer) ListTargets(context.Context, *ListTargetsRequest) (*ListTargetsResponse, error) {
	return nil, nil
}

// CaptureStream_SubscribeServer is the streaming handle Subscribe uses to
// push packets to one client.
type CaptureStream_SubscribeServer interface {
	Send(*CapturedPacket) error
	grpc.ServerStream
}

// CaptureStreamClient is what a consumer dials against.
type CaptureStreamClient interface {
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (CaptureStream_SubscribeClient, error)
	ListTargets(ctx context.Context, in *ListTargetsRequest, opts ...grpc.CallOption) (*ListTargetsResponse, error)
}

type CaptureStream_SubscribeClient interface {
	Recv() (*CapturedPacket, error)
	grpc.ClientStream
}

// --- service wiring ----------------------------------------------------
//
// Generated pb.go files carry this boilerplate out of protoc; since this
// service is hand-written, the ServiceDesc/handlers below are hand-written
// too, following the exact shape protoc-gen-go-grpc produces.

var CaptureStream_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "capture.CaptureStream",
	HandlerType: (*CaptureStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTargets", Handler: _CaptureStream_ListTargets_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _CaptureStream_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "capture.proto",
}

// RegisterCaptureStreamServer registers srv with s, the same call shape a
// protoc-generated RegisterXxxServer function has.
func RegisterCaptureStreamServer(s grpc.ServiceRegistrar, srv CaptureStreamServer) {
	s.RegisterService(&CaptureStream_ServiceDesc, srv)
}

func _CaptureStream_ListTargets_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListTargetsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CaptureStreamServer).ListTargets(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/capture.CaptureStream/ListTargets"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CaptureStreamServer).ListTargets(ctx, req.(*ListTargetsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CaptureStream_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(CaptureStreamServer).Subscribe(m, &captureStreamSubscribeServer{stream})
}

type captureStreamSubscribeServer struct {
	grpc.ServerStream
}

func (x *captureStreamSubscribeServer) Send(m *CapturedPacket) error {
	return x.ServerStream.SendMsg(m)
}

// NewCaptureStreamClient builds a client over cc, the same call shape a
// protoc-generated NewXxxClient constructor has.
func NewCaptureStreamClient(cc grpc.ClientConnInterface) CaptureStreamClient {
	return &captureStreamClient{cc}
}

type captureStreamClient struct {
	cc grpc.ClientConnInterface
}

func (c *captureStreamClient) ListTargets(ctx context.Context, in *ListTargetsRequest, opts ...grpc.CallOption) (*ListTargetsResponse, error) {
	out := new(ListTargetsResponse)
	if err := c.cc.Invoke(ctx, "/capture.CaptureStream/ListTargets", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *captureStreamClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (CaptureStream_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &CaptureStream_ServiceDesc.Streams[0], "/capture.CaptureStream/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	x := &captureStreamSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type captureStreamSubscribeClient struct {
	grpc.ClientStream
}

func (x *captureStreamSubscribeClient) Recv() (*CapturedPacket, error) {
	m := new(CapturedPacket)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
