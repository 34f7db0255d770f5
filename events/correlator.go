package events

import (
	"context"
	"sync"

	"github.com/jizhuozhi/go-future"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/puzpuzpuz/xsync/v3"
)

// ackFunc runs on the receive goroutine before the waiting caller is woken,
// so state derived from the response is in place before the next inbound
// message is processed.
type ackFunc func(*cachegrpc.MapListenerResponse)

type pendingRequest struct {
	promise *future.Promise[*cachegrpc.MapListenerResponse]
	ack     ackFunc
}

// correlator matches responses to outstanding requests by request id.
// Each entry is completed exactly once: whoever removes it from the table
// owns the promise.
type correlator struct {
	pending *xsync.MapOf[string, *pendingRequest]

	mu     sync.RWMutex
	closed error
}

func newCorrelator() *correlator {
	return &correlator{
		pending: xsync.NewMapOf[string, *pendingRequest](),
	}
}

// register tracks uid and returns a future for its response. After rejectAll
// the returned future is already failed with the closing error.
func (c *correlator) register(uid string, ack ackFunc) *future.Future[*cachegrpc.MapListenerResponse] {
	p := future.NewPromise[*cachegrpc.MapListenerResponse]()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed != nil {
		p.Set(nil, c.closed)
		return p.Future()
	}
	c.pending.Store(uid, &pendingRequest{promise: p, ack: ack})
	return p.Future()
}

// resolve completes uid with resp. Unknown ids are ignored and reported false.
func (c *correlator) resolve(uid string, resp *cachegrpc.MapListenerResponse) bool {
	req, ok := c.pending.LoadAndDelete(uid)
	if !ok {
		return false
	}
	if req.ack != nil {
		req.ack(resp)
	}
	req.promise.Set(resp, nil)
	return true
}

// reject fails uid with err. Unknown ids are ignored and reported false.
func (c *correlator) reject(uid string, err error) bool {
	req, ok := c.pending.LoadAndDelete(uid)
	if !ok {
		return false
	}
	req.promise.Set(nil, err)
	return true
}

// rejectAll fails every outstanding request and every later registration.
func (c *correlator) rejectAll(err error) int {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = err
	}
	c.mu.Unlock()

	n := 0
	c.pending.Range(func(uid string, _ *pendingRequest) bool {
		if c.reject(uid, err) {
			n++
		}
		return true
	})
	return n
}

// size returns the number of outstanding requests
func (c *correlator) size() int {
	return c.pending.Size()
}

// await blocks until f completes or ctx is done.
func await[T any](ctx context.Context, f *future.Future[T]) (T, error) {
	var (
		val  T
		err  error
		done = make(chan struct{})
	)
	go func() {
		val, err = f.Get()
		close(done)
	}()

	select {
	case <-done:
		return val, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
