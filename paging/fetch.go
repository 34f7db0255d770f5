package paging

import (
	"context"

	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
)

// Target names the cache a fetcher reads from
type Target struct {
	Scope  string
	Cache  string
	Format string
}

func (t Target) request(cookie []byte) *cachegrpc.PageRequest {
	return &cachegrpc.PageRequest{
		Scope:  t.Scope,
		Cache:  t.Cache,
		Format: t.Format,
		Cookie: cookie,
	}
}

// KeySetFetcher fetches key pages with NextKeySetPage.
func KeySetFetcher(client cachegrpc.NamedCacheClient, t Target) Fetcher {
	return func(ctx context.Context, cookie []byte) (FrameStream, error) {
		return client.NextKeySetPage(ctx, t.request(cookie))
	}
}

// EntrySetFetcher fetches entry pages with NextEntrySetPage. Value
// collections read entry pages too.
func EntrySetFetcher(client cachegrpc.NamedCacheClient, t Target) Fetcher {
	return func(ctx context.Context, cookie []byte) (FrameStream, error) {
		return client.NextEntrySetPage(ctx, t.request(cookie))
	}
}
