package paging

import (
	"context"
	"time"

	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
)

// Cursor iterates rows page by page. At most one page is fetched at a time
// and only when the buffered rows are used up. A fetch error is permanent:
// every later Next returns it. Not safe for concurrent use.
type Cursor[T any] struct {
	kind   string
	fetch  Fetcher
	decode Decoder[T]

	cookie    []byte
	exhausted bool
	buf       []T
	err       error
	pages     int
}

// NewCursor creates a cursor; kind labels its metrics ("keys", "entries", "values").
func NewCursor[T any](kind string, fetch Fetcher, decode Decoder[T]) *Cursor[T] {
	return &Cursor[T]{kind: kind, fetch: fetch, decode: decode}
}

// Next returns the next row, or ErrDone when there are none left.
func (c *Cursor[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		if c.err != nil {
			return zero, c.err
		}
		if len(c.buf) > 0 {
			row := c.buf[0]
			c.buf[0] = zero
			c.buf = c.buf[1:]
			return row, nil
		}
		if c.exhausted {
			return zero, ErrDone
		}
		if err := c.loadNextPage(ctx); err != nil {
			c.err = err
			return zero, err
		}
	}
}

// Pages returns the number of pages fetched so far
func (c *Cursor[T]) Pages() int {
	return c.pages
}

func (c *Cursor[T]) loadNextPage(ctx context.Context) error {
	start := time.Now()
	page, err := c.readPage(ctx)
	telemetry.PageFetchSeconds.With(c.kind).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.PageFetchesTotal.With(c.kind, "failed").Inc()
		log.Debug().Err(err).Str("kind", c.kind).Int("page", c.pages).Msg("Page fetch failed")
		return err
	}
	telemetry.PageFetchesTotal.With(c.kind, "success").Inc()
	telemetry.PageRowsTotal.With(c.kind).Add(float64(len(page.Rows)))

	c.pages++
	c.buf = page.Rows
	c.cookie = page.Cookie
	c.exhausted = page.Last()
	return nil
}

func (c *Cursor[T]) readPage(ctx context.Context) (Page[T], error) {
	if err := ctx.Err(); err != nil {
		return Page[T]{}, err
	}
	// Releases the page stream when it is abandoned mid-page.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.fetch(ctx, c.cookie)
	if err != nil {
		return Page[T]{}, err
	}
	return ReadPage(stream, c.decode)
}
