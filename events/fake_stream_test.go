package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/stretchr/testify/require"
)

// fakeServer answers listener requests the way the cluster does: every
// request is acknowledged in order and filter subscriptions get a fresh id.
type fakeServer struct {
	mu           sync.Mutex
	requests     []*cachegrpc.MapListenerRequest
	nextFilterID int64
	opens        int
	openErr      error
	hold         bool // Record requests without answering them
	dropNext     int  // Leave this many upcoming requests unanswered
	reject       func(*cachegrpc.MapListenerRequest) *cachegrpc.ErrorResponse
	stream       *fakeStream
}

type fakeStream struct {
	ctx  context.Context
	srv  *fakeServer
	in   chan *cachegrpc.MapListenerResponse
	fail chan error
}

func newFakeServer() *fakeServer {
	return &fakeServer{nextFilterID: 100}
}

func (s *fakeServer) open(ctx context.Context) (EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.stream = &fakeStream{
		ctx:  ctx,
		srv:  s,
		in:   make(chan *cachegrpc.MapListenerResponse, 256),
		fail: make(chan error, 1),
	}
	return s.stream, nil
}

func (s *fakeServer) answer(st *fakeStream, req *cachegrpc.MapListenerRequest) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.hold {
		s.mu.Unlock()
		return
	}
	if s.dropNext > 0 {
		s.dropNext--
		s.mu.Unlock()
		return
	}
	if s.reject != nil {
		if e := s.reject(req); e != nil {
			s.mu.Unlock()
			e.UID = req.UID
			st.in <- &cachegrpc.MapListenerResponse{Error: e}
			return
		}
	}
	var resp *cachegrpc.MapListenerResponse
	switch {
	case req.Subscribe || req.Type == cachegrpc.RequestInit:
		sub := &cachegrpc.Subscribed{UID: req.UID}
		if req.Type == cachegrpc.RequestFilter {
			s.nextFilterID++
			sub.FilterID = s.nextFilterID
		}
		resp = &cachegrpc.MapListenerResponse{Subscribed: sub}
	default:
		resp = &cachegrpc.MapListenerResponse{Unsubscribed: &cachegrpc.Unsubscribed{UID: req.UID}}
	}
	s.mu.Unlock()
	st.in <- resp
}

// push delivers a message on the current stream
func (s *fakeServer) push(resp *cachegrpc.MapListenerResponse) {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	st.in <- resp
}

// breakStream makes the next Recv fail with err
func (s *fakeServer) breakStream(err error) {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	st.fail <- err
}

// listenerRequests returns non-INIT requests in send order
func (s *fakeServer) listenerRequests() []*cachegrpc.MapListenerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cachegrpc.MapListenerRequest
	for _, r := range s.requests {
		if r.Type != cachegrpc.RequestInit {
			out = append(out, r)
		}
	}
	return out
}

func (s *fakeServer) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func (s *fakeServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (st *fakeStream) Send(req *cachegrpc.MapListenerRequest) error {
	select {
	case <-st.ctx.Done():
		return st.ctx.Err()
	default:
	}
	cp := *req
	st.srv.answer(st, &cp)
	return nil
}

func (st *fakeStream) Recv() (*cachegrpc.MapListenerResponse, error) {
	select {
	case resp := <-st.in:
		return resp, nil
	case err := <-st.fail:
		return nil, err
	case <-st.ctx.Done():
		return nil, st.ctx.Err()
	}
}

func (st *fakeStream) CloseSend() error { return nil }

var errBroken = errors.New("connection reset")

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (r *lifecycleRecorder) record(evt LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *lifecycleRecorder) snapshot() []LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LifecycleEvent(nil), r.events...)
}

func newTestManager(t *testing.T, srv *fakeServer) (*Manager, *lifecycleRecorder) {
	t.Helper()
	rec := &lifecycleRecorder{}
	m, err := NewManager(Config{
		Cache:          "orders",
		Scope:          "test",
		Serializer:     encoding.JSON{},
		Open:           srv.open,
		RequestTimeout: 5 * time.Second,
		OnLifecycle:    rec.record,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, rec
}

// recorder is a MapListener that keeps every event it sees
type recorder struct {
	mu     sync.Mutex
	events []*MapEvent
}

func (r *recorder) add(e *MapEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnInserted(e *MapEvent) { r.add(e) }
func (r *recorder) OnUpdated(e *MapEvent)  { r.add(e) }
func (r *recorder) OnDeleted(e *MapEvent)  { r.add(e) }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) snapshot() []*MapEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*MapEvent(nil), r.events...)
}

func jsonBytes(t *testing.T, v any) []byte {
	t.Helper()
	b, err := encoding.JSON{}.Serialize(v)
	require.NoError(t, err)
	return b
}

func eventMessage(t *testing.T, id int32, key any, filterIDs ...int64) *cachegrpc.MapListenerResponse {
	return &cachegrpc.MapListenerResponse{Event: &cachegrpc.MapEventMessage{
		ID:        id,
		Key:       jsonBytes(t, key),
		NewValue:  jsonBytes(t, "v"),
		FilterIDs: filterIDs,
	}}
}
