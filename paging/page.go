// Package paging turns the server-streaming page RPCs into forward cursors.
//
// Each page is one server stream. Its first frame carries only the
// continuation cookie for the next page; every later frame is one row. An
// empty cookie means the page just read is the last one.
package paging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
)

// ErrDone is returned by Cursor.Next once every row has been returned.
var ErrDone = errors.New("no more elements")

// FrameStream is the receive side of a page stream.
// grpc.ServerStreamingClient[PageFrame] satisfies it.
type FrameStream interface {
	Recv() (*cachegrpc.PageFrame, error)
}

// Fetcher opens the stream for the page identified by cookie. A nil cookie
// requests the first page.
type Fetcher func(ctx context.Context, cookie []byte) (FrameStream, error)

// Decoder converts one row frame into a value
type Decoder[T any] func(frame *cachegrpc.PageFrame) (T, error)

// Page is one fully read page
type Page[T any] struct {
	Cookie []byte // Empty when no page follows
	Rows   []T
}

// Last reports whether no page follows this one
func (p Page[T]) Last() bool {
	return len(p.Cookie) == 0
}

// ReadPage drains stream into a page. A stream that ends before its cookie
// frame is an empty last page.
func ReadPage[T any](stream FrameStream, decode Decoder[T]) (Page[T], error) {
	var page Page[T]

	head, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return page, nil
	}
	if err != nil {
		return page, fmt.Errorf("read page cookie: %w", err)
	}
	page.Cookie = head.Cookie

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return page, nil
		}
		if err != nil {
			return page, fmt.Errorf("read page row %d: %w", len(page.Rows), err)
		}
		row, err := decode(frame)
		if err != nil {
			return page, fmt.Errorf("decode page row %d: %w", len(page.Rows), err)
		}
		page.Rows = append(page.Rows, row)
	}
}

// Entry is one key/value row of an entry page
type Entry[K, V any] struct {
	Key   K
	Value V
}

// KeyDecoder decodes the key of each frame with ser.
func KeyDecoder[K any](ser encoding.Serializer) Decoder[K] {
	return func(frame *cachegrpc.PageFrame) (K, error) {
		var k K
		err := ser.Deserialize(frame.Key, &k)
		return k, err
	}
}

// ValueDecoder decodes the value of each frame with ser.
func ValueDecoder[V any](ser encoding.Serializer) Decoder[V] {
	return func(frame *cachegrpc.PageFrame) (V, error) {
		var v V
		err := ser.Deserialize(frame.Value, &v)
		return v, err
	}
}

// EntryDecoder decodes key and value of each frame with ser.
func EntryDecoder[K, V any](ser encoding.Serializer) Decoder[Entry[K, V]] {
	return func(frame *cachegrpc.PageFrame) (Entry[K, V], error) {
		var e Entry[K, V]
		if err := ser.Deserialize(frame.Key, &e.Key); err != nil {
			return e, fmt.Errorf("key: %w", err)
		}
		if err := ser.Deserialize(frame.Value, &e.Value); err != nil {
			return e, fmt.Errorf("value: %w", err)
		}
		return e, nil
	}
}
