package grpc

import (
	"fmt"
	"time"

	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// createDialOptions returns common gRPC dial options built from cfg.Config
func createDialOptions(info SessionInfo) []grpc.DialOption {
	keepaliveTime := 10 * time.Second
	keepaliveTimeout := 3 * time.Second
	maxMessage := 100 * 1024 * 1024
	compression := 0
	if cfg.Config != nil {
		keepaliveTime = time.Duration(cfg.Config.GRPCClient.KeepaliveTimeSeconds) * time.Second
		keepaliveTimeout = time.Duration(cfg.Config.GRPCClient.KeepaliveTimeoutSeconds) * time.Second
		if cfg.Config.GRPCClient.MaxMessageMB > 0 {
			maxMessage = cfg.Config.GRPCClient.MaxMessageMB * 1024 * 1024
		}
		compression = cfg.Config.GRPCClient.CompressionLevel
	}

	callOpts := []grpc.CallOption{
		grpc.MaxCallRecvMsgSize(maxMessage),
		grpc.MaxCallSendMsgSize(maxMessage),
	}
	if name := CompressionName(compression); name != "" && RegisterZstdCompressor(compression) {
		callOpts = append(callOpts, grpc.UseCompressor(name))
	}

	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepaliveTime,
			Timeout:             keepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(callOpts...),
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(info)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(info)),
	}
}

// Dial creates a client connection to the cache cluster. The connection is
// established lazily by gRPC on first use. Extra options are appended after
// the configured ones, so callers can override transport credentials.
func Dial(address string, info SessionInfo, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := append(createDialOptions(info), extra...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", address, err)
	}

	log.Debug().
		Str("address", address).
		Str("scope", info.Scope).
		Str("format", info.Format).
		Msg("Created cache client connection")

	return conn, nil
}
