package grpc

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/encoding"
)

const zstdName = "zstd"

// Config levels 1..4, fastest first.
var zstdLevels = [...]zstd.EncoderLevel{
	zstd.SpeedFastest,
	zstd.SpeedDefault,
	zstd.SpeedBetterCompression,
	zstd.SpeedBestCompression,
}

// zstdCompressor is a gRPC encoding.Compressor. Messages are whole frames,
// so one stateless encoder and decoder serve every stream concurrently.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCompressor(level int) (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

var (
	zstdOnce      sync.Once
	zstdAvailable bool
)

// RegisterZstdCompressor makes the zstd compressor available to gRPC and
// reports whether it is. The level of the first call wins.
func RegisterZstdCompressor(level int) bool {
	zstdOnce.Do(func() {
		c, err := newZstdCompressor(level)
		if err != nil {
			log.Error().Err(err).Msg("zstd compression unavailable")
			return
		}
		encoding.RegisterCompressor(c)
		zstdAvailable = true
		log.Info().Int("level", level).Str("zstd_level", zstdLevel(level).String()).Msg("Registered zstd gRPC compressor")
	})
	return zstdAvailable
}

func (c *zstdCompressor) Name() string {
	return zstdName
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return &frameWriter{c: c, w: w}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return bytes.NewReader(out), nil
}

// frameWriter buffers one message and writes it as a single frame on Close.
type frameWriter struct {
	c   *zstdCompressor
	w   io.Writer
	buf []byte
}

func (f *frameWriter) Write(p []byte) (int, error) {
	f.buf = append(f.buf, p...)
	return len(p), nil
}

func (f *frameWriter) Close() error {
	_, err := f.w.Write(f.c.enc.EncodeAll(f.buf, nil))
	f.buf = nil
	return err
}

// zstdLevel clamps a config level into the supported range.
func zstdLevel(level int) zstd.EncoderLevel {
	return zstdLevels[min(max(level, 1), len(zstdLevels))-1]
}

// CompressionName returns the compressor name for a config level, empty when disabled
func CompressionName(level int) string {
	if level > 0 {
		return zstdName
	}
	return ""
}
