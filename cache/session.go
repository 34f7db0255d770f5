// Package cache is the application-facing client: a Session per cluster
// connection and typed NamedMap handles exposing listeners and streamed
// key, entry and value collections.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/oracle/coherence-js-client-sub001/encoding"
	"github.com/oracle/coherence-js-client-sub001/events"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/hlc"
	"github.com/oracle/coherence-js-client-sub001/id"
	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

// ErrSessionClosed is returned when opening a map on a closed session
var ErrSessionClosed = errors.New("session closed")

type options struct {
	address        string
	scope          string
	format         string
	clientID       uint64
	requestTimeout time.Duration
	readyTimeout   time.Duration
	dispatchBuffer int
	dialOptions    []grpc.DialOption
	collector      *telemetry.MetricsCollector
}

// Option customizes a Session
type Option func(*options)

// WithAddress sets the cluster proxy address (any gRPC target)
func WithAddress(address string) Option {
	return func(o *options) { o.address = address }
}

// WithScope sets the scope sent with every request
func WithScope(scope string) Option {
	return func(o *options) { o.scope = scope }
}

// WithFormat selects the serializer by format name
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithRequestTimeout bounds each listener request round trip
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDialOptions appends gRPC dial options, e.g. TLS credentials
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}

// WithMetricsCollector registers every opened map with mc
func WithMetricsCollector(mc *telemetry.MetricsCollector) Option {
	return func(o *options) { o.collector = mc }
}

func defaultOptions() options {
	c := cfg.Config
	return options{
		address:        c.Session.Address,
		scope:          c.Session.Scope,
		format:         c.Session.Format,
		clientID:       cfg.ClientID(),
		requestTimeout: time.Duration(c.Session.RequestTimeoutMS) * time.Millisecond,
		readyTimeout:   time.Duration(c.Session.ReadyTimeoutMS) * time.Millisecond,
		dispatchBuffer: c.Events.DispatchBuffer,
	}
}

// handle is what the session needs from an open map of any type
type handle interface {
	Name() string
	Stats() events.Stats
	Release() error
}

// Session owns one gRPC connection and the maps opened through it.
type Session struct {
	opts   options
	conn   *grpc.ClientConn
	client cachegrpc.NamedCacheClient
	ser    encoding.Serializer
	ids    id.Generator

	mu     sync.Mutex
	maps   map[string]handle
	closed bool
}

// NewSession dials the cluster. Unset options come from cfg.Config.
func NewSession(opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ser, err := encoding.Lookup(o.format)
	if err != nil {
		return nil, err
	}

	info := cachegrpc.SessionInfo{Scope: o.scope, Format: o.format, ClientID: o.clientID}
	conn, err := cachegrpc.Dial(o.address, info, o.dialOptions...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("address", o.address).
		Str("scope", o.scope).
		Str("format", o.format).
		Msg("Session opened")

	return &Session{
		opts:   o,
		conn:   conn,
		client: cachegrpc.NewNamedCacheClient(conn),
		ser:    ser,
		ids:    id.NewHLCGenerator(hlc.NewClock(o.clientID)),
		maps:   make(map[string]handle),
	}, nil
}

// Format returns the serializer format used by this session
func (s *Session) Format() string {
	return s.ser.Format()
}

// Maps returns the names of open maps in sorted order
func (s *Session) Maps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.maps))
	for name := range s.maps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns the event manager stats of every open map
func (s *Session) Stats() map[string]events.Stats {
	s.mu.Lock()
	handles := make([]handle, 0, len(s.maps))
	for _, h := range s.maps {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	out := make(map[string]events.Stats, len(handles))
	for _, h := range handles {
		out[h.Name()] = h.Stats()
	}
	return out
}

// GetNamedMap returns the handle for the named map, opening it on first use.
// Asking for an open map with different type parameters fails.
func GetNamedMap[K, V any](s *Session, name string) (*NamedMap[K, V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if h, ok := s.maps[name]; ok {
		m, ok := h.(*NamedMap[K, V])
		if !ok {
			return nil, fmt.Errorf("map %s is already open as %T", name, h)
		}
		return m, nil
	}

	m, err := newNamedMap[K, V](s, name)
	if err != nil {
		return nil, err
	}
	s.maps[name] = m
	if s.opts.collector != nil {
		s.opts.collector.Track(name, m.manager)
	}
	return m, nil
}

// forget drops a released map from the registry
func (s *Session) forget(name string, h handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maps[name] == h {
		delete(s.maps, name)
		if s.opts.collector != nil {
			s.opts.collector.Untrack(name)
		}
	}
}

// Close releases every open map and closes the connection. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]handle, 0, len(s.maps))
	for _, h := range s.maps {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.Release(); err != nil {
			log.Warn().Err(err).Str("map", h.Name()).Msg("Failed to release map")
		}
	}

	log.Info().Str("address", s.opts.address).Msg("Session closed")
	return s.conn.Close()
}
