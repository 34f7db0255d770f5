package grpc

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/proto"
)

// CodecName is the gRPC content subtype used by the cache service
// (content-type "application/grpc+msgpack").
const CodecName = "msgpack"

// msgpackCodec implements gRPC's encoding.CodecV2. Plain structs are
// msgpack-encoded; protobuf messages keep their native wire format so the
// same connection can carry well-known types.
type msgpackCodec struct{}

func init() {
	encoding.RegisterCodecV2(msgpackCodec{})
}

func (msgpackCodec) Name() string {
	return CodecName
}

func (msgpackCodec) Marshal(v any) (mem.BufferSlice, error) {
	data, err := marshal(v)
	if err != nil {
		return nil, err
	}
	return mem.BufferSlice{mem.SliceBuffer(data)}, nil
}

func (msgpackCodec) Unmarshal(data mem.BufferSlice, v any) error {
	return unmarshal(data.Materialize(), v)
}

func marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack unmarshal %T: %w", v, err)
	}
	return nil
}
