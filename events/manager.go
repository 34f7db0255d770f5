package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/id"
	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	defaultDispatchBuffer = 1024
	// Bounds the rollback of a failed listener change when no request
	// timeout is configured.
	defaultRestoreTimeout = 30 * time.Second
)

// Config configures a Manager
type Config struct {
	Cache      string
	Scope      string
	Serializer encoding.Serializer
	Open       StreamOpener
	IDs        id.Generator // Defaults to a counter

	RequestTimeout time.Duration // Per request, 0 = caller's context only
	ReadyTimeout   time.Duration // Stream handshake, 0 = no limit
	DispatchBuffer int           // Queued deliveries before the receive loop blocks

	// OnLifecycle is called on the dispatch goroutine, in stream order with map events.
	OnLifecycle func(LifecycleEvent)
}

type delivery struct {
	event     *MapEvent
	groups    []*ListenerGroup
	lifecycle *LifecycleEvent
}

// Manager routes the map events of one cache to key and filter listener
// groups sharing a single event stream. Listener callbacks run on one
// dispatch goroutine, in the order events arrive. A callback that blocks on
// the manager (Close, or a registration while the dispatch buffer is full)
// stalls delivery; hand such work to another goroutine.
type Manager struct {
	cache       string
	ser         encoding.Serializer
	conn        *connection
	lifecycleFn func(LifecycleEvent)

	mu           sync.RWMutex
	keyGroups    map[string]*ListenerGroup
	filterGroups map[string]*ListenerGroup
	filterIDs    map[int64]*ListenerGroup

	queue        chan delivery
	dispatchDone chan struct{}
	closeOnce    sync.Once
}

// NewManager creates a manager. The event stream is opened by the first
// listener registration.
func NewManager(c Config) (*Manager, error) {
	if c.Serializer == nil {
		return nil, fmt.Errorf("manager for %s: serializer is required", c.Cache)
	}
	if c.Open == nil {
		return nil, fmt.Errorf("manager for %s: stream opener is required", c.Cache)
	}
	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = defaultDispatchBuffer
	}

	m := &Manager{
		cache:        c.Cache,
		ser:          c.Serializer,
		lifecycleFn:  c.OnLifecycle,
		keyGroups:    make(map[string]*ListenerGroup),
		filterGroups: make(map[string]*ListenerGroup),
		filterIDs:    make(map[int64]*ListenerGroup),
		queue:        make(chan delivery, c.DispatchBuffer),
		dispatchDone: make(chan struct{}),
	}
	m.conn = newConnection(connectionConfig{
		cache:          c.Cache,
		scope:          c.Scope,
		format:         c.Serializer.Format(),
		open:           c.Open,
		ids:            c.IDs,
		requestTimeout: c.RequestTimeout,
		readyTimeout:   c.ReadyTimeout,
	}, m)

	go m.dispatch()
	return m, nil
}

// ConnectionState returns the state of the underlying event stream
func (m *Manager) ConnectionState() ConnectionState {
	return m.conn.State()
}

// AddKeyListener registers l for events on key. Lite listeners may receive
// events without old and new values.
func (m *Manager) AddKeyListener(ctx context.Context, l MapListener, key any, lite bool) error {
	raw, err := m.ser.Serialize(key)
	if err != nil {
		return fmt.Errorf("serialize listener key: %w", err)
	}
	return m.add(ctx, keyGroup, raw, l, lite)
}

// RemoveKeyListener unregisters l from key.
func (m *Manager) RemoveKeyListener(ctx context.Context, l MapListener, key any) error {
	raw, err := m.ser.Serialize(key)
	if err != nil {
		return fmt.Errorf("serialize listener key: %w", err)
	}
	return m.remove(ctx, keyGroup, string(raw), l)
}

// AddFilterListener registers l for events matching filter. Filters are
// grouped by their serialized form, so equal filters share a registration.
func (m *Manager) AddFilterListener(ctx context.Context, l MapListener, filter any, lite bool) error {
	raw, err := m.ser.Serialize(filter)
	if err != nil {
		return fmt.Errorf("serialize listener filter: %w", err)
	}
	return m.add(ctx, filterGroup, raw, l, lite)
}

// RemoveFilterListener unregisters l from filter.
func (m *Manager) RemoveFilterListener(ctx context.Context, l MapListener, filter any) error {
	raw, err := m.ser.Serialize(filter)
	if err != nil {
		return fmt.Errorf("serialize listener filter: %w", err)
	}
	return m.remove(ctx, filterGroup, string(raw), l)
}

func (m *Manager) groups(kind groupKind) map[string]*ListenerGroup {
	if kind == keyGroup {
		return m.keyGroups
	}
	return m.filterGroups
}

func (m *Manager) add(ctx context.Context, kind groupKind, raw []byte, l MapListener, lite bool) error {
	canonical := string(raw)
	for {
		g := m.groupFor(kind, canonical, raw)
		err := g.add(ctx, l, lite)
		if isRetryable(err) {
			continue
		}
		return err
	}
}

func (m *Manager) remove(ctx context.Context, kind groupKind, canonical string, l MapListener) error {
	m.mu.RLock()
	g := m.groups(kind)[canonical]
	m.mu.RUnlock()
	if g == nil {
		return nil
	}
	return g.remove(ctx, l)
}

func (m *Manager) groupFor(kind groupKind, canonical string, raw []byte) *ListenerGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := m.groups(kind)
	if g, ok := index[canonical]; ok {
		return g
	}
	g := newListenerGroup(m, kind, canonical, raw)
	index[canonical] = g
	return g
}

// KeyGroup returns the listener group for key, or nil.
func (m *Manager) KeyGroup(key any) *ListenerGroup {
	raw, err := m.ser.Serialize(key)
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keyGroups[string(raw)]
}

// FilterGroup returns the listener group for filter, or nil.
func (m *Manager) FilterGroup(filter any) *ListenerGroup {
	raw, err := m.ser.Serialize(filter)
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterGroups[string(raw)]
}

func (m *Manager) bindFilter(filterID int64, g *ListenerGroup) {
	m.mu.Lock()
	m.filterIDs[filterID] = g
	m.mu.Unlock()
}

func (m *Manager) unbindFilter(filterID int64, g *ListenerGroup) {
	m.mu.Lock()
	if m.filterIDs[filterID] == g {
		delete(m.filterIDs, filterID)
	}
	m.mu.Unlock()
}

// retire drops a disposed group from the indexes, unless a newer group has
// already taken its place.
func (m *Manager) retire(g *ListenerGroup, filterID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := m.groups(g.kind)
	if index[g.canonical] == g {
		delete(index, g.canonical)
	}
	if filterID != 0 && m.filterIDs[filterID] == g {
		delete(m.filterIDs, filterID)
	}
}

// onEvent runs on the receive goroutine. Groups are resolved here so that
// registrations acknowledged earlier on the stream are always visible.
func (m *Manager) onEvent(msg *cachegrpc.MapEventMessage) {
	evt := newMapEvent(m.cache, m.ser, msg)

	m.mu.RLock()
	groups := make([]*ListenerGroup, 0, len(msg.FilterIDs)+1)
	seen := make(map[int64]struct{}, len(msg.FilterIDs))
	for _, fid := range msg.FilterIDs {
		if _, dup := seen[fid]; dup {
			continue
		}
		seen[fid] = struct{}{}
		if g, ok := m.filterIDs[fid]; ok {
			groups = append(groups, g)
		}
	}
	if g, ok := m.keyGroups[evt.canonicalKey()]; ok {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	if len(groups) == 0 {
		telemetry.EventsDroppedTotal.Inc()
		log.Debug().Str("cache", m.cache).Ints64("filter_ids", msg.FilterIDs).Msg("Event matched no listener group")
		return
	}
	m.queue <- delivery{event: evt, groups: groups}
}

func (m *Manager) restoreTimeout() time.Duration {
	if t := m.conn.cfg.requestTimeout; t > 0 {
		return t
	}
	return defaultRestoreTimeout
}

func (m *Manager) onLifecycle(evt LifecycleEvent) {
	m.queue <- delivery{lifecycle: &evt}
}

func (m *Manager) dispatch() {
	defer close(m.dispatchDone)
	for d := range m.queue {
		if d.lifecycle != nil {
			m.notifyLifecycle(*d.lifecycle)
			continue
		}
		// A listener registered in several matching groups hears the event once
		seen := make(map[MapListener]struct{})
		for _, g := range d.groups {
			g.notify(d.event, seen)
		}
	}
}

func (m *Manager) notifyLifecycle(evt LifecycleEvent) {
	if m.lifecycleFn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			telemetry.ListenerPanicsTotal.Inc()
			log.Error().Str("cache", m.cache).Interface("panic", r).Msg("Lifecycle listener panicked")
		}
	}()
	m.lifecycleFn(evt)
}

// Stats is a point-in-time view of a manager
type Stats struct {
	Connection      ConnectionState
	KeyGroups       int
	FilterGroups    int
	Listeners       int
	PendingRequests int
}

// Stats returns current group, listener and request counts.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	groups := make([]*ListenerGroup, 0, len(m.keyGroups)+len(m.filterGroups))
	stats := Stats{
		Connection:      m.conn.State(),
		KeyGroups:       len(m.keyGroups),
		FilterGroups:    len(m.filterGroups),
		PendingRequests: m.conn.pending.size(),
	}
	for _, g := range m.keyGroups {
		groups = append(groups, g)
	}
	for _, g := range m.filterGroups {
		groups = append(groups, g)
	}
	m.mu.RUnlock()

	for _, g := range groups {
		stats.Listeners += g.Len()
	}
	return stats
}

// ListenerStats implements telemetry.StatsProvider
func (m *Manager) ListenerStats() telemetry.ListenerStats {
	s := m.Stats()
	return telemetry.ListenerStats{
		KeyGroups:    s.KeyGroups,
		FilterGroups: s.FilterGroups,
		Listeners:    s.Listeners,
	}
}

// Close ends the event stream and waits until every queued delivery has been
// dispatched. Registered listeners receive nothing afterwards. Safe to call
// more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		_ = m.conn.Close()
		close(m.queue)
	})
	<-m.dispatchDone
	return nil
}
