package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jizhuozhi/go-future"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/id"
	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
)

// EventStream is the client half of the bidirectional events RPC.
// grpc.BidiStreamingClient[MapListenerRequest, MapListenerResponse] satisfies it.
type EventStream interface {
	Send(*cachegrpc.MapListenerRequest) error
	Recv() (*cachegrpc.MapListenerResponse, error)
	CloseSend() error
}

// StreamOpener opens a new event stream bound to ctx. Cancelling ctx must
// abort the stream.
type StreamOpener func(ctx context.Context) (EventStream, error)

// OpenerFor returns a StreamOpener calling client.Events.
func OpenerFor(client cachegrpc.NamedCacheClient) StreamOpener {
	return func(ctx context.Context) (EventStream, error) {
		return client.Events(ctx)
	}
}

// ConnectionState is the lifecycle state of an event stream connection
type ConnectionState int32

const (
	StateUnconnected ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// inbound receives what the connection reads off the stream. Both methods
// run on the receive goroutine.
type inbound interface {
	onEvent(msg *cachegrpc.MapEventMessage)
	onLifecycle(evt LifecycleEvent)
}

type connectionConfig struct {
	cache          string
	scope          string
	format         string
	open           StreamOpener
	ids            id.Generator
	requestTimeout time.Duration
	readyTimeout   time.Duration
}

// connection owns one event stream per cache handle. The stream is opened
// lazily by the first request and is never reopened: once it fails every
// pending and later request fails with the recorded cause.
type connection struct {
	cfg     connectionConfig
	handler inbound
	pending *correlator

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    ConnectionState
	ready    *future.Future[struct{}]
	stream   EventStream
	failure  error
	finished chan struct{}

	finishOnce sync.Once
	sendMu     sync.Mutex
}

func newConnection(c connectionConfig, handler inbound) *connection {
	if c.ids == nil {
		c.ids = id.NewCounterGenerator()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		cfg:      c,
		handler:  handler,
		pending:  newCorrelator(),
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
}

func (c *connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// writeRequest sends req and waits for its correlated response, opening the
// stream first if needed. ack runs on the receive goroutine before request
// returns.
func (c *connection) writeRequest(ctx context.Context, req *cachegrpc.MapListenerRequest, ack ackFunc) (*cachegrpc.MapListenerResponse, error) {
	if err := c.ensureStream(ctx); err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, req, ack, c.cfg.requestTimeout)
}

func (c *connection) ensureStream(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosing, StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateFailed:
		err := c.failure
		c.mu.Unlock()
		return err
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateUnconnected:
		p := future.NewPromise[struct{}]()
		c.ready = p.Future()
		c.state = StateConnecting
		go c.connect(p)
	}
	ready := c.ready
	c.mu.Unlock()

	_, err := await(ctx, ready)
	return err
}

func (c *connection) connect(p *future.Promise[struct{}]) {
	stream, err := c.cfg.open(c.ctx)
	if err != nil {
		err = c.terminate(fmt.Errorf("open event stream: %w", err))
		c.finish()
		p.Set(struct{}{}, err)
		return
	}

	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	go c.receive(stream)

	handshake := &cachegrpc.MapListenerRequest{Type: cachegrpc.RequestInit}
	if _, err := c.roundTrip(c.ctx, handshake, nil, c.cfg.readyTimeout); err != nil {
		p.Set(struct{}{}, c.terminate(fmt.Errorf("event stream handshake: %w", err)))
		return
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.state = StateOpen
		err = nil
	case StateFailed:
		err = c.failure
	default:
		err = ErrClosed
	}
	c.mu.Unlock()

	if err == nil {
		log.Debug().Str("cache", c.cfg.cache).Msg("Event stream open")
	}
	p.Set(struct{}{}, err)
}

func (c *connection) roundTrip(ctx context.Context, req *cachegrpc.MapListenerRequest, ack ackFunc, timeout time.Duration) (*cachegrpc.MapListenerResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req.UID = c.cfg.ids.NextID()
	req.Scope = c.cfg.scope
	req.Cache = c.cfg.cache
	req.Format = c.cfg.format

	start := time.Now()
	f := c.pending.register(req.UID, ack)
	if err := c.send(req); err != nil {
		c.pending.reject(req.UID, err)
	}

	resp, err := await(ctx, f)
	if err != nil && ctx.Err() != nil && !c.pending.reject(req.UID, err) {
		// Completed while the context expired; the response (and its ack) won.
		resp, err = f.Get()
	}
	telemetry.RequestDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *connection) send(req *cachegrpc.MapListenerRequest) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return ErrClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := stream.Send(req); err != nil {
		return fmt.Errorf("%w: send %s request: %w", ErrStreamFailed, req.Type, err)
	}
	return nil
}

func (c *connection) receive(stream EventStream) {
	defer c.finish()

	telemetry.EventStreamsOpen.Inc()
	defer telemetry.EventStreamsOpen.Dec()

	for {
		resp, err := stream.Recv()
		if err != nil {
			c.terminate(err)
			return
		}
		c.handleResponse(resp)
	}
}

func (c *connection) handleResponse(resp *cachegrpc.MapListenerResponse) {
	switch v := resp.Variant().(type) {
	case *cachegrpc.Subscribed:
		c.resolve(v.UID, resp)
	case *cachegrpc.Unsubscribed:
		c.resolve(v.UID, resp)
	case *cachegrpc.ErrorResponse:
		err := &RequestError{UID: v.UID, Code: v.Code, Message: v.Message}
		if !c.pending.reject(v.UID, err) {
			log.Warn().Err(err).Str("cache", c.cfg.cache).Msg("Error response for unknown request")
		}
	case *cachegrpc.MapEventMessage:
		telemetry.EventsReceivedTotal.With(EventType(v.ID).String()).Inc()
		c.handler.onEvent(v)
	case *cachegrpc.Destroyed:
		c.handler.onLifecycle(LifecycleEvent{Type: LifecycleDestroyed, Source: c.cfg.cache})
	case *cachegrpc.Truncated:
		c.handler.onLifecycle(LifecycleEvent{Type: LifecycleTruncated, Source: c.cfg.cache})
	default:
		log.Warn().Str("cache", c.cfg.cache).Msg("Ignoring empty event stream response")
	}
}

func (c *connection) resolve(uid string, resp *cachegrpc.MapListenerResponse) {
	if !c.pending.resolve(uid, resp) {
		log.Debug().Str("cache", c.cfg.cache).Str("uid", uid).Msg("Response for unknown request")
	}
}

// terminate moves the connection to its terminal state and fails everything
// pending. It returns the error pending requests were rejected with. Only the
// first call has any effect.
func (c *connection) terminate(cause error) error {
	c.mu.Lock()
	var (
		err    error
		failed bool
	)
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateFailed:
		err = c.failure
		c.mu.Unlock()
		return err
	case StateClosing:
		c.state = StateClosed
		err = ErrClosed
	default:
		c.state = StateFailed
		if errors.Is(cause, ErrStreamFailed) {
			err = cause
		} else {
			err = fmt.Errorf("%w: %w", ErrStreamFailed, cause)
		}
		c.failure = err
		failed = true
	}
	c.mu.Unlock()

	c.cancel()
	n := c.pending.rejectAll(err)

	if failed {
		telemetry.EventStreamFailuresTotal.Inc()
		log.Error().Err(cause).Str("cache", c.cfg.cache).Int("pending", n).Msg("Event stream failed")
		c.handler.onLifecycle(LifecycleEvent{Type: LifecycleError, Source: c.cfg.cache, Err: err})
	}
	return err
}

func (c *connection) finish() {
	c.finishOnce.Do(func() { close(c.finished) })
}

// Close ends the stream and waits for the receive goroutine to exit. Pending
// requests fail with ErrClosed. Safe to call more than once.
func (c *connection) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateUnconnected:
		c.state = StateClosed
		c.mu.Unlock()
		c.cancel()
		c.pending.rejectAll(ErrClosed)
		c.finish()
		return nil
	case StateConnecting, StateOpen:
		c.state = StateClosing
	case StateFailed:
		c.state = StateClosed
	}
	stream := c.stream
	c.mu.Unlock()

	if stream != nil {
		c.sendMu.Lock()
		_ = stream.CloseSend()
		c.sendMu.Unlock()
	}
	c.cancel()
	<-c.finished
	return nil
}
