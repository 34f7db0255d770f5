package grpc

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMsgpackCodec_Registered(t *testing.T) {
	c := encoding.GetCodecV2(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())

	data, err := c.Marshal(&MapListenerRequest{Type: RequestKey, Key: []byte("k"), Subscribe: true})
	require.NoError(t, err)

	var out MapListenerRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, RequestKey, out.Type)
	assert.Equal(t, []byte("k"), out.Key)
	assert.True(t, out.Subscribe)
}

func TestMsgpackCodec_SplitBuffers(t *testing.T) {
	codec := msgpackCodec{}
	data, err := codec.Marshal(&MapListenerRequest{Cache: "orders", UID: "u-1"})
	require.NoError(t, err)

	// Received messages may arrive split across several buffers
	raw := data.Materialize()
	split := mem.BufferSlice{mem.SliceBuffer(raw[:3]), mem.SliceBuffer(raw[3:])}

	var out MapListenerRequest
	require.NoError(t, codec.Unmarshal(split, &out))
	assert.Equal(t, "orders", out.Cache)
	assert.Equal(t, "u-1", out.UID)
}

func TestMsgpackCodec_ResponseVariant(t *testing.T) {
	codec := msgpackCodec{}
	in := &MapListenerResponse{Event: &MapEventMessage{
		ID:        EventUpdated,
		Key:       []byte("k"),
		NewValue:  []byte("v"),
		FilterIDs: []int64{7, 9},
		Priming:   true,
	}}

	data, err := codec.Marshal(in)
	require.NoError(t, err)

	var out MapListenerResponse
	require.NoError(t, codec.Unmarshal(data, &out))

	evt, ok := out.Variant().(*MapEventMessage)
	require.True(t, ok)
	assert.Equal(t, []int64{7, 9}, evt.FilterIDs)
	assert.True(t, evt.Priming)
	assert.Nil(t, out.Subscribed)
}

func TestMsgpackCodec_ProtoFallback(t *testing.T) {
	codec := msgpackCodec{}
	data, err := codec.Marshal(wrapperspb.String("hello"))
	require.NoError(t, err)

	var out wrapperspb.StringValue
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, "hello", out.GetValue())
}

func TestVariant_Empty(t *testing.T) {
	assert.Nil(t, (&MapListenerResponse{}).Variant())
	var nilResp *MapListenerResponse
	assert.Nil(t, nilResp.Variant())
}

func TestZstdCompressor_RoundTrip(t *testing.T) {
	c, err := newZstdCompressor(2)
	require.NoError(t, err)
	payload := bytes.Repeat([]byte("map-event "), 200)

	var buf bytes.Buffer
	w, err := c.Compress(&buf)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Less(t, buf.Len(), len(payload))

	r, err := c.Decompress(&buf)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestZstdCompressor_ConcurrentStreams(t *testing.T) {
	c, err := newZstdCompressor(1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte('a' + i)}, 4096)
			var buf bytes.Buffer
			w, err := c.Compress(&buf)
			assert.NoError(t, err)
			_, _ = w.Write(payload[:100])
			_, _ = w.Write(payload[100:])
			assert.NoError(t, w.Close())

			r, err := c.Decompress(&buf)
			assert.NoError(t, err)
			got, err := io.ReadAll(r)
			assert.NoError(t, err)
			assert.Equal(t, payload, got)
		}()
	}
	wg.Wait()
}

func TestZstdLevel_Clamped(t *testing.T) {
	assert.Equal(t, zstd.SpeedFastest, zstdLevel(-1))
	assert.Equal(t, zstd.SpeedDefault, zstdLevel(2))
	assert.Equal(t, zstd.SpeedBestCompression, zstdLevel(9))
}

func TestCompressionName(t *testing.T) {
	assert.Equal(t, "", CompressionName(0))
	assert.Equal(t, "zstd", CompressionName(3))
}
