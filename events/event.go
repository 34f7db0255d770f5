package events

import (
	"fmt"
	"sync"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
)

// EventType is the kind of change a MapEvent reports
type EventType int32

const (
	EntryInserted EventType = EventType(cachegrpc.EventInserted)
	EntryUpdated  EventType = EventType(cachegrpc.EventUpdated)
	EntryDeleted  EventType = EventType(cachegrpc.EventDeleted)
)

func (t EventType) String() string {
	switch t {
	case EntryInserted:
		return "inserted"
	case EntryUpdated:
		return "updated"
	case EntryDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// lazyValue decodes a payload at most once, on first access.
type lazyValue struct {
	raw  []byte
	once sync.Once
	val  any
	err  error
}

func (l *lazyValue) get(ser encoding.Serializer) (any, error) {
	l.once.Do(func() {
		if len(l.raw) == 0 {
			return
		}
		l.err = ser.Deserialize(l.raw, &l.val)
	})
	return l.val, l.err
}

// MapEvent is an insert, update or delete notification for one cache entry.
// Key and values are deserialized on first access; a payload that cannot be
// decoded fails there, not when the event is received.
type MapEvent struct {
	source    string
	eventType EventType
	ser       encoding.Serializer
	filterIDs []int64
	synthetic bool
	priming   bool

	key      lazyValue
	oldValue lazyValue
	newValue lazyValue
}

func newMapEvent(source string, ser encoding.Serializer, msg *cachegrpc.MapEventMessage) *MapEvent {
	return &MapEvent{
		source:    source,
		eventType: EventType(msg.ID),
		ser:       ser,
		filterIDs: msg.FilterIDs,
		synthetic: msg.Synthetic,
		priming:   msg.Priming,
		key:       lazyValue{raw: msg.Key},
		oldValue:  lazyValue{raw: msg.OldValue},
		newValue:  lazyValue{raw: msg.NewValue},
	}
}

// Source returns the name of the cache that raised the event
func (e *MapEvent) Source() string { return e.source }

// Type returns the kind of change
func (e *MapEvent) Type() EventType { return e.eventType }

// FilterIDs returns the ids of the filter subscriptions the event matched
func (e *MapEvent) FilterIDs() []int64 { return e.filterIDs }

// IsSynthetic reports a change caused by the cluster (eviction, expiry) rather than a client
func (e *MapEvent) IsSynthetic() bool { return e.synthetic }

// IsPriming reports an event sent to prime a newly registered listener
func (e *MapEvent) IsPriming() bool { return e.priming }

// Key returns the deserialized key.
func (e *MapEvent) Key() (any, error) {
	return e.key.get(e.ser)
}

// OldValue returns the previous value; nil for inserts and for lite registrations.
func (e *MapEvent) OldValue() (any, error) {
	return e.oldValue.get(e.ser)
}

// NewValue returns the new value; nil for deletes and for lite registrations.
func (e *MapEvent) NewValue() (any, error) {
	return e.newValue.get(e.ser)
}

// DecodeKey deserializes the key into dst.
func (e *MapEvent) DecodeKey(dst any) error {
	return e.ser.Deserialize(e.key.raw, dst)
}

// DecodeOldValue deserializes the old value into dst. It reports false when
// the event carries no old value.
func (e *MapEvent) DecodeOldValue(dst any) (bool, error) {
	if len(e.oldValue.raw) == 0 {
		return false, nil
	}
	return true, e.ser.Deserialize(e.oldValue.raw, dst)
}

// DecodeNewValue deserializes the new value into dst. It reports false when
// the event carries no new value.
func (e *MapEvent) DecodeNewValue(dst any) (bool, error) {
	if len(e.newValue.raw) == 0 {
		return false, nil
	}
	return true, e.ser.Deserialize(e.newValue.raw, dst)
}

// canonicalKey is the index form of the event key: its serialized bytes.
func (e *MapEvent) canonicalKey() string {
	return string(e.key.raw)
}

func (e *MapEvent) String() string {
	return fmt.Sprintf("MapEvent{source=%s, type=%s, filters=%v, synthetic=%t, priming=%t}",
		e.source, e.eventType, e.filterIDs, e.synthetic, e.priming)
}
