package grpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	// ScopeHeader carries the session scope
	ScopeHeader = "x-cache-scope"
	// FormatHeader carries the serializer format name
	FormatHeader = "x-cache-format"
	// ClientIDHeader identifies the client process
	ClientIDHeader = "x-cache-client-id"
)

// SessionInfo is the per-session metadata stamped on every call
type SessionInfo struct {
	Scope    string
	Format   string
	ClientID uint64
}

func (s SessionInfo) appendTo(ctx context.Context) context.Context {
	kv := make([]string, 0, 6)
	if s.Scope != "" {
		kv = append(kv, ScopeHeader, s.Scope)
	}
	if s.Format != "" {
		kv = append(kv, FormatHeader, s.Format)
	}
	if s.ClientID != 0 {
		kv = append(kv, ClientIDHeader, strconv.FormatUint(s.ClientID, 10))
	}
	if len(kv) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// UnaryClientInterceptor returns a client interceptor that adds session metadata
func UnaryClientInterceptor(info SessionInfo) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(info.appendTo(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a client interceptor for streaming RPCs
func StreamClientInterceptor(info SessionInfo) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(info.appendTo(ctx), desc, cc, method, opts...)
	}
}

// SessionFromIncoming extracts session metadata on the server side
func SessionFromIncoming(ctx context.Context) (SessionInfo, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return SessionInfo{}, false
	}

	var info SessionInfo
	if v := md.Get(ScopeHeader); len(v) > 0 {
		info.Scope = v[0]
	}
	if v := md.Get(FormatHeader); len(v) > 0 {
		info.Format = v[0]
	}
	if v := md.Get(ClientIDHeader); len(v) > 0 {
		info.ClientID, _ = strconv.ParseUint(v[0], 10, 64)
	}
	return info, true
}
