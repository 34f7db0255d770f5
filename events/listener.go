package events

// MapListener receives map events. Listeners are compared by identity, so
// register pointer types (for example *ListenerFuncs) and pass the same value
// to remove them.
type MapListener interface {
	OnInserted(*MapEvent)
	OnUpdated(*MapEvent)
	OnDeleted(*MapEvent)
}

// ListenerFuncs adapts plain functions to MapListener. Nil callbacks are skipped.
type ListenerFuncs struct {
	Inserted func(*MapEvent)
	Updated  func(*MapEvent)
	Deleted  func(*MapEvent)
}

func (l *ListenerFuncs) OnInserted(e *MapEvent) {
	if l.Inserted != nil {
		l.Inserted(e)
	}
}

func (l *ListenerFuncs) OnUpdated(e *MapEvent) {
	if l.Updated != nil {
		l.Updated(e)
	}
}

func (l *ListenerFuncs) OnDeleted(e *MapEvent) {
	if l.Deleted != nil {
		l.Deleted(e)
	}
}

// OnAny returns a listener that calls fn for every event type.
func OnAny(fn func(*MapEvent)) *ListenerFuncs {
	return &ListenerFuncs{Inserted: fn, Updated: fn, Deleted: fn}
}

// LifecycleType is the kind of cache handle lifecycle change
type LifecycleType int

const (
	// LifecycleDestroyed means the cache was destroyed on the cluster
	LifecycleDestroyed LifecycleType = iota + 1
	// LifecycleTruncated means every entry was removed without per-entry events
	LifecycleTruncated
	// LifecycleReleased means the local handle was closed
	LifecycleReleased
	// LifecycleError means the event stream failed; listeners no longer receive events
	LifecycleError
)

func (t LifecycleType) String() string {
	switch t {
	case LifecycleDestroyed:
		return "destroyed"
	case LifecycleTruncated:
		return "truncated"
	case LifecycleReleased:
		return "released"
	case LifecycleError:
		return "error"
	default:
		return "unknown"
	}
}

// LifecycleEvent reports a lifecycle change of a cache handle
type LifecycleEvent struct {
	Type   LifecycleType
	Source string
	Err    error // Set for LifecycleError
}
