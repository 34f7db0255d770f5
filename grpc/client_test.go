package grpc_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/grpc/cachetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsRoundTrip(t *testing.T) {
	srv := cachetest.New(t, "json")
	info := cachegrpc.SessionInfo{Scope: "tenant-a", Format: "json", ClientID: 42}

	conn, err := srv.Dial(info)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := cachegrpc.NewNamedCacheClient(conn).Events(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&cachegrpc.MapListenerRequest{Cache: "orders", UID: "1", Type: cachegrpc.RequestInit}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	sub, ok := resp.Variant().(*cachegrpc.Subscribed)
	require.True(t, ok)
	assert.Equal(t, "1", sub.UID)

	require.NoError(t, stream.Send(&cachegrpc.MapListenerRequest{
		Cache: "orders", UID: "2", Type: cachegrpc.RequestFilter, Filter: []byte(`{}`), Subscribe: true,
	}))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, resp.Subscribed)
	assert.NotZero(t, resp.Subscribed.FilterID)

	require.NoError(t, srv.Put("orders", "k", 1))
	resp, err = stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, resp.Event)
	assert.Equal(t, cachegrpc.EventInserted, resp.Event.ID)
	assert.Equal(t, []int64{resp.Event.FilterIDs[0]}, resp.Event.FilterIDs)

	require.NoError(t, stream.CloseSend())

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, info, sessions[0])
}

func TestKeySetPages(t *testing.T) {
	srv := cachetest.New(t, "json")
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, srv.Put("orders", k, k))
	}

	conn, err := srv.Dial(cachegrpc.SessionInfo{Format: "json"})
	require.NoError(t, err)
	defer conn.Close()
	client := cachegrpc.NewNamedCacheClient(conn)

	ctx := context.Background()
	read := func(cookie []byte) ([]byte, int) {
		stream, err := client.NextKeySetPage(ctx, &cachegrpc.PageRequest{Cache: "orders", Cookie: cookie})
		require.NoError(t, err)
		head, err := stream.Recv()
		require.NoError(t, err)
		rows := 0
		for {
			_, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return head.Cookie, rows
			}
			require.NoError(t, err)
			rows++
		}
	}

	cookie, rows := read(nil)
	assert.Equal(t, 2, rows)
	require.NotEmpty(t, cookie)

	cookie, rows = read(cookie)
	assert.Equal(t, 1, rows)
	assert.Empty(t, cookie)
}

func TestDisconnectFailsStream(t *testing.T) {
	srv := cachetest.New(t, "json")
	conn, err := srv.Dial(cachegrpc.SessionInfo{})
	require.NoError(t, err)
	defer conn.Close()

	stream, err := cachegrpc.NewNamedCacheClient(conn).Events(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Send(&cachegrpc.MapListenerRequest{UID: "1"}))
	_, err = stream.Recv()
	require.NoError(t, err)

	srv.Disconnect()
	_, err = stream.Recv()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
