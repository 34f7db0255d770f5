package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "coherence.NamedCacheService"

	eventsMethod           = "/" + ServiceName + "/events"
	nextKeySetPageMethod   = "/" + ServiceName + "/nextKeySetPage"
	nextEntrySetPageMethod = "/" + ServiceName + "/nextEntrySetPage"
)

// NamedCacheClient is the client API for the cache service's streaming RPCs.
type NamedCacheClient interface {
	// Events opens the bidirectional map listener stream.
	Events(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[MapListenerRequest, MapListenerResponse], error)
	// NextKeySetPage streams one page of keys.
	NextKeySetPage(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[PageFrame], error)
	// NextEntrySetPage streams one page of entries.
	NextEntrySetPage(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[PageFrame], error)
}

type namedCacheClient struct {
	cc grpc.ClientConnInterface
}

// NewNamedCacheClient wraps a connection. Every call is sent with the msgpack
// content subtype.
func NewNamedCacheClient(cc grpc.ClientConnInterface) NamedCacheClient {
	return &namedCacheClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *namedCacheClient) Events(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[MapListenerRequest, MapListenerResponse], error) {
	stream, err := c.cc.NewStream(ctx, &NamedCacheServiceDesc.Streams[0], eventsMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[MapListenerRequest, MapListenerResponse]{ClientStream: stream}, nil
}

func (c *namedCacheClient) NextKeySetPage(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[PageFrame], error) {
	return c.openPage(ctx, &NamedCacheServiceDesc.Streams[1], nextKeySetPageMethod, in, opts)
}

func (c *namedCacheClient) NextEntrySetPage(ctx context.Context, in *PageRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[PageFrame], error) {
	return c.openPage(ctx, &NamedCacheServiceDesc.Streams[2], nextEntrySetPageMethod, in, opts)
}

func (c *namedCacheClient) openPage(ctx context.Context, desc *grpc.StreamDesc, method string, in *PageRequest, opts []grpc.CallOption) (grpc.ServerStreamingClient[PageFrame], error) {
	stream, err := c.cc.NewStream(ctx, desc, method, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[PageRequest, PageFrame]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// NamedCacheServer is the server API for the cache service's streaming RPCs.
// The client never implements it; it exists for in-process test servers and
// proxies.
type NamedCacheServer interface {
	Events(grpc.BidiStreamingServer[MapListenerRequest, MapListenerResponse]) error
	NextKeySetPage(*PageRequest, grpc.ServerStreamingServer[PageFrame]) error
	NextEntrySetPage(*PageRequest, grpc.ServerStreamingServer[PageFrame]) error
}

// UnimplementedNamedCacheServer can be embedded to get forward compatible
// implementations.
type UnimplementedNamedCacheServer struct{}

func (UnimplementedNamedCacheServer) Events(grpc.BidiStreamingServer[MapListenerRequest, MapListenerResponse]) error {
	return status.Errorf(codes.Unimplemented, "method events not implemented")
}

func (UnimplementedNamedCacheServer) NextKeySetPage(*PageRequest, grpc.ServerStreamingServer[PageFrame]) error {
	return status.Errorf(codes.Unimplemented, "method nextKeySetPage not implemented")
}

func (UnimplementedNamedCacheServer) NextEntrySetPage(*PageRequest, grpc.ServerStreamingServer[PageFrame]) error {
	return status.Errorf(codes.Unimplemented, "method nextEntrySetPage not implemented")
}

// RegisterNamedCacheServer registers srv on s.
func RegisterNamedCacheServer(s grpc.ServiceRegistrar, srv NamedCacheServer) {
	s.RegisterService(&NamedCacheServiceDesc, srv)
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	return srv.(NamedCacheServer).Events(&grpc.GenericServerStream[MapListenerRequest, MapListenerResponse]{ServerStream: stream})
}

func nextKeySetPageHandler(srv any, stream grpc.ServerStream) error {
	m := new(PageRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(NamedCacheServer).NextKeySetPage(m, &grpc.GenericServerStream[PageRequest, PageFrame]{ServerStream: stream})
}

func nextEntrySetPageHandler(srv any, stream grpc.ServerStream) error {
	m := new(PageRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(NamedCacheServer).NextEntrySetPage(m, &grpc.GenericServerStream[PageRequest, PageFrame]{ServerStream: stream})
}

// NamedCacheServiceDesc describes the cache service's streaming RPCs.
var NamedCacheServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NamedCacheServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "events",
			Handler:       eventsHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "nextKeySetPage",
			Handler:       nextKeySetPageHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "nextEntrySetPage",
			Handler:       nextEntrySetPageHandler,
			ServerStreams: true,
		},
	},
	Metadata: "cache_service.proto",
}
