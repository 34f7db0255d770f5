package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/oracle/coherence-js-client-sub001/events"
	"github.com/oracle/coherence-js-client-sub001/filter"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/paging"
	"github.com/rs/zerolog/log"
)

// ErrReleased is returned by every operation on a released map
var ErrReleased = errors.New("map released")

// NamedMap is a typed handle to one remote cache. Keys and values are
// serialized with the session format; listeners receive events whose key
// and values decode into K and V.
type NamedMap[K, V any] struct {
	session *Session
	name    string
	manager *events.Manager

	mu        sync.Mutex
	released  bool
	nextID    int
	lifecycle map[int]func(events.LifecycleEvent)
}

func newNamedMap[K, V any](s *Session, name string) (*NamedMap[K, V], error) {
	m := &NamedMap[K, V]{
		session:   s,
		name:      name,
		lifecycle: make(map[int]func(events.LifecycleEvent)),
	}
	mgr, err := events.NewManager(events.Config{
		Cache:          name,
		Scope:          s.opts.scope,
		Serializer:     s.ser,
		Open:           events.OpenerFor(s.client),
		IDs:            s.ids,
		RequestTimeout: s.opts.requestTimeout,
		ReadyTimeout:   s.opts.readyTimeout,
		DispatchBuffer: s.opts.dispatchBuffer,
		OnLifecycle:    m.onLifecycle,
	})
	if err != nil {
		return nil, err
	}
	m.manager = mgr
	return m, nil
}

// Name returns the cache name
func (m *NamedMap[K, V]) Name() string { return m.name }

// Stats returns the listener and connection state of this map
func (m *NamedMap[K, V]) Stats() events.Stats { return m.manager.Stats() }

// IsReleased reports whether the handle was released or the cache destroyed
func (m *NamedMap[K, V]) IsReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

func (m *NamedMap[K, V]) check() error {
	if m.IsReleased() {
		return ErrReleased
	}
	return nil
}

// allEvents is the filter behind map-wide listeners
func allEvents() filter.Filter {
	return filter.Events(filter.All, filter.Always())
}

// AddListener registers l for every event of the map.
func (m *NamedMap[K, V]) AddListener(ctx context.Context, l events.MapListener, lite bool) error {
	return m.AddFilterListener(ctx, l, allEvents(), lite)
}

// RemoveListener undoes AddListener.
func (m *NamedMap[K, V]) RemoveListener(ctx context.Context, l events.MapListener) error {
	return m.RemoveFilterListener(ctx, l, allEvents())
}

// AddKeyListener registers l for events on key.
func (m *NamedMap[K, V]) AddKeyListener(ctx context.Context, l events.MapListener, key K, lite bool) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.manager.AddKeyListener(ctx, l, key, lite)
}

// RemoveKeyListener undoes AddKeyListener.
func (m *NamedMap[K, V]) RemoveKeyListener(ctx context.Context, l events.MapListener, key K) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.manager.RemoveKeyListener(ctx, l, key)
}

// AddFilterListener registers l for events on entries matching f.
func (m *NamedMap[K, V]) AddFilterListener(ctx context.Context, l events.MapListener, f filter.Filter, lite bool) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.manager.AddFilterListener(ctx, l, f, lite)
}

// RemoveFilterListener undoes AddFilterListener.
func (m *NamedMap[K, V]) RemoveFilterListener(ctx context.Context, l events.MapListener, f filter.Filter) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.manager.RemoveFilterListener(ctx, l, f)
}

// OnLifecycle registers fn for lifecycle events of this map and returns a
// function that unregisters it. fn runs on the event dispatch goroutine,
// except for LifecycleReleased which runs on the releasing goroutine.
func (m *NamedMap[K, V]) OnLifecycle(fn func(events.LifecycleEvent)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	key := m.nextID
	m.lifecycle[key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.lifecycle, key)
	}
}

func (m *NamedMap[K, V]) fireLifecycle(evt events.LifecycleEvent) {
	m.mu.Lock()
	fns := make([]func(events.LifecycleEvent), 0, len(m.lifecycle))
	for i := 1; i <= m.nextID; i++ {
		if fn, ok := m.lifecycle[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		callLifecycle(fn, evt)
	}
}

func callLifecycle(fn func(events.LifecycleEvent), evt events.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("map", evt.Source).Interface("panic", r).Msg("Lifecycle listener panicked")
		}
	}()
	fn(evt)
}

func (m *NamedMap[K, V]) onLifecycle(evt events.LifecycleEvent) {
	m.fireLifecycle(evt)
	if evt.Type == events.LifecycleDestroyed {
		log.Info().Str("map", m.name).Msg("Map destroyed on the cluster, releasing handle")
		// Release waits for this dispatch goroutine to drain.
		go func() { _ = m.Release() }()
	}
}

// KeySet streams the keys of the map page by page.
func (m *NamedMap[K, V]) KeySet() *paging.Collection[K] {
	return paging.NewCollection("keys", m.fetcher(paging.KeySetFetcher), paging.KeyDecoder[K](m.session.ser))
}

// EntrySet streams the entries of the map page by page.
func (m *NamedMap[K, V]) EntrySet() *paging.Collection[paging.Entry[K, V]] {
	return paging.NewCollection("entries", m.fetcher(paging.EntrySetFetcher), paging.EntryDecoder[K, V](m.session.ser))
}

// Values streams the values of the map page by page.
func (m *NamedMap[K, V]) Values() *paging.Collection[V] {
	return paging.NewCollection("values", m.fetcher(paging.EntrySetFetcher), paging.ValueDecoder[V](m.session.ser))
}

func (m *NamedMap[K, V]) fetcher(kind func(cachegrpc.NamedCacheClient, paging.Target) paging.Fetcher) paging.Fetcher {
	inner := kind(m.session.client, paging.Target{
		Scope:  m.session.opts.scope,
		Cache:  m.name,
		Format: m.session.ser.Format(),
	})
	return func(ctx context.Context, cookie []byte) (paging.FrameStream, error) {
		if err := m.check(); err != nil {
			return nil, err
		}
		return inner(ctx, cookie)
	}
}

// Release closes the map's event stream and removes it from the session.
// Listeners receive a LifecycleReleased event. Safe to call more than once.
func (m *NamedMap[K, V]) Release() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	m.mu.Unlock()

	err := m.manager.Close()
	m.session.forget(m.name, m)
	m.fireLifecycle(events.LifecycleEvent{Type: events.LifecycleReleased, Source: m.name})
	log.Debug().Str("map", m.name).Msg("Map released")
	return err
}
