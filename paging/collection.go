package paging

import (
	"context"
	"errors"
	"iter"
)

// Collection is a lazily streamed view of a remote key set, entry set or
// value collection. Every iteration starts a fresh cursor from the first page.
type Collection[T any] struct {
	kind   string
	fetch  Fetcher
	decode Decoder[T]
}

// NewCollection creates a collection backed by fetch.
func NewCollection[T any](kind string, fetch Fetcher, decode Decoder[T]) *Collection[T] {
	return &Collection[T]{kind: kind, fetch: fetch, decode: decode}
}

// Iterator returns a new cursor positioned before the first row
func (c *Collection[T]) Iterator() *Cursor[T] {
	return NewCursor(c.kind, c.fetch, c.decode)
}

// All yields every row. A failure is yielded once, with the zero value, and
// ends the sequence.
func (c *Collection[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		cur := c.Iterator()
		for {
			row, err := cur.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Collect reads every row into a slice.
func (c *Collection[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for row, err := range c.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}
