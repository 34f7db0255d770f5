package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/oracle/coherence-js-client-sub001/telemetry"
	"github.com/rs/zerolog/log"
)

// GroupState is the registration state of a listener group
type GroupState int32

const (
	GroupInactive GroupState = iota
	GroupRegistering
	GroupActive
	GroupReregistering
	GroupUnsubscribing
	GroupDisposed
)

func (s GroupState) String() string {
	switch s {
	case GroupInactive:
		return "inactive"
	case GroupRegistering:
		return "registering"
	case GroupActive:
		return "active"
	case GroupReregistering:
		return "reregistering"
	case GroupUnsubscribing:
		return "unsubscribing"
	case GroupDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

type groupKind int

const (
	keyGroup groupKind = iota
	filterGroup
)

func (k groupKind) String() string {
	if k == keyGroup {
		return "key"
	}
	return "filter"
}

type listenerEntry struct {
	listener MapListener
	lite     bool
}

// ListenerGroup holds every listener registered for one key or one filter
// and keeps a single server registration for them. The registration is lite
// only while every listener in the group is lite.
type ListenerGroup struct {
	manager   *Manager
	kind      groupKind
	canonical string
	payload   []byte

	// opMu serializes add/remove including their network round trips.
	opMu sync.Mutex

	mu         sync.RWMutex
	listeners  []listenerEntry
	state      GroupState
	registered bool
	lite       bool
	filterID   int64
}

func newListenerGroup(m *Manager, kind groupKind, canonical string, payload []byte) *ListenerGroup {
	return &ListenerGroup{
		manager:   m,
		kind:      kind,
		canonical: canonical,
		payload:   payload,
	}
}

// State returns the current registration state
func (g *ListenerGroup) State() GroupState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Len returns the number of registered listeners
func (g *ListenerGroup) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.listeners)
}

// FilterID returns the id the server assigned to a filter registration, or 0.
func (g *ListenerGroup) FilterID() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filterID
}

func (g *ListenerGroup) setState(s GroupState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *ListenerGroup) find(l MapListener) int {
	for i, e := range g.listeners {
		if e.listener == l {
			return i
		}
	}
	return -1
}

// add registers l, upgrading or creating the server registration when needed.
// Adding a listener that is already present only updates its lite flag. On
// failure l is rolled back to its previous state.
func (g *ListenerGroup) add(ctx context.Context, l MapListener, lite bool) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	if g.state == GroupDisposed {
		g.mu.Unlock()
		return errGroupDisposed
	}
	var prev *listenerEntry
	if i := g.find(l); i >= 0 {
		e := g.listeners[i]
		prev = &e
		g.listeners[i].lite = lite
	} else {
		g.listeners = append(g.listeners, listenerEntry{listener: l, lite: lite})
	}
	g.mu.Unlock()

	err := g.reconcile(ctx)
	if err == nil {
		return nil
	}

	g.mu.Lock()
	if i := g.find(l); i >= 0 {
		if prev != nil {
			g.listeners[i] = *prev
		} else {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
		}
	}
	g.mu.Unlock()

	// The caller's context may be what failed the change; the restore runs
	// detached from its cancellation.
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.manager.restoreTimeout())
	defer cancel()
	if rerr := g.reconcile(restoreCtx); rerr != nil {
		log.Warn().Err(rerr).Str("cache", g.manager.cache).Str("scope", g.kind.String()).
			Msg("Failed to restore listener registration")
	}
	return err
}

// remove unregisters l. The listener is removed locally even when the server
// round trip fails; the error is still reported. Removing an unknown
// listener is a no-op.
func (g *ListenerGroup) remove(ctx context.Context, l MapListener) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	if g.state == GroupDisposed {
		g.mu.Unlock()
		return nil
	}
	i := g.find(l)
	if i < 0 {
		g.mu.Unlock()
		return nil
	}
	g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
	g.mu.Unlock()

	return g.reconcile(ctx)
}

// wanted reports the listener count and whether a lite registration suffices.
func (g *ListenerGroup) wanted() (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	lite := true
	for _, e := range g.listeners {
		if !e.lite {
			lite = false
			break
		}
	}
	return len(g.listeners), lite
}

// reconcile brings the server registration in line with the listener set.
// Caller holds opMu.
func (g *ListenerGroup) reconcile(ctx context.Context) error {
	n, lite := g.wanted()

	g.mu.RLock()
	registered, registeredLite := g.registered, g.lite
	g.mu.RUnlock()

	switch {
	case n == 0:
		var err error
		if registered {
			g.setState(GroupUnsubscribing)
			err = g.unsubscribe(ctx)
		}
		g.dispose()
		return err
	case !registered:
		g.setState(GroupRegistering)
		return g.subscribe(ctx, lite)
	case lite != registeredLite:
		g.setState(GroupReregistering)
		if err := g.unsubscribe(ctx); err != nil {
			return err
		}
		return g.subscribe(ctx, lite)
	}
	return nil
}

func (g *ListenerGroup) request(subscribe, lite bool) *cachegrpc.MapListenerRequest {
	req := &cachegrpc.MapListenerRequest{Subscribe: subscribe, Lite: lite}
	switch g.kind {
	case keyGroup:
		req.Type = cachegrpc.RequestKey
		req.Key = g.payload
	case filterGroup:
		req.Type = cachegrpc.RequestFilter
		req.Filter = g.payload
		g.mu.RLock()
		req.FilterID = g.filterID
		g.mu.RUnlock()
	}
	return req
}

func (g *ListenerGroup) subscribe(ctx context.Context, lite bool) error {
	var ack ackFunc
	if g.kind == filterGroup {
		// Bind the server-assigned id before any event carrying it is read.
		ack = func(resp *cachegrpc.MapListenerResponse) {
			if resp.Subscribed == nil {
				return
			}
			g.mu.Lock()
			g.filterID = resp.Subscribed.FilterID
			g.mu.Unlock()
			g.manager.bindFilter(resp.Subscribed.FilterID, g)
		}
	}

	_, err := g.manager.conn.writeRequest(ctx, g.request(true, lite), ack)
	g.countRequest("subscribe", err)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.registered = false
		g.state = GroupInactive
		return fmt.Errorf("subscribe %s listener: %w", g.kind, err)
	}
	g.registered = true
	g.lite = lite
	g.state = GroupActive
	return nil
}

func (g *ListenerGroup) unsubscribe(ctx context.Context) error {
	_, err := g.manager.conn.writeRequest(ctx, g.request(false, false), nil)
	g.countRequest("unsubscribe", err)

	// Considered unregistered even on failure; a failed stream has no
	// registrations left and a rejected unsubscribe is not retried.
	g.mu.Lock()
	filterID := g.filterID
	g.registered = false
	g.filterID = 0
	g.state = GroupInactive
	g.mu.Unlock()

	if g.kind == filterGroup && filterID != 0 {
		g.manager.unbindFilter(filterID, g)
	}
	if err != nil {
		return fmt.Errorf("unsubscribe %s listener: %w", g.kind, err)
	}
	return nil
}

func (g *ListenerGroup) countRequest(op string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	telemetry.SubscriptionRequestsTotal.With(g.kind.String(), op, result).Inc()
}

func (g *ListenerGroup) dispose() {
	g.mu.Lock()
	g.state = GroupDisposed
	filterID := g.filterID
	g.filterID = 0
	g.mu.Unlock()
	g.manager.retire(g, filterID)
}

// notify calls every listener registered at the time of the call, skipping
// those already in seen and adding the rest. A panicking listener is logged
// and does not stop delivery to the others.
func (g *ListenerGroup) notify(evt *MapEvent, seen map[MapListener]struct{}) {
	g.mu.RLock()
	snapshot := make([]MapListener, 0, len(g.listeners))
	for _, e := range g.listeners {
		if _, dup := seen[e.listener]; dup {
			continue
		}
		seen[e.listener] = struct{}{}
		snapshot = append(snapshot, e.listener)
	}
	g.mu.RUnlock()

	for _, l := range snapshot {
		deliver(l, evt)
	}
}

func deliver(l MapListener, evt *MapEvent) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ListenerPanicsTotal.Inc()
			log.Error().
				Str("source", evt.Source()).
				Str("type", evt.Type().String()).
				Interface("panic", r).
				Msg("Map listener panicked")
		}
	}()

	switch evt.Type() {
	case EntryInserted:
		l.OnInserted(evt)
	case EntryUpdated:
		l.OnUpdated(evt)
	case EntryDeleted:
		l.OnDeleted(evt)
	default:
		log.Warn().Str("source", evt.Source()).Int32("type", int32(evt.Type())).Msg("Unknown map event type")
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, errGroupDisposed)
}
