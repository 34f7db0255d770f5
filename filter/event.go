package filter

import "strings"

// EventMask selects which map events a MapEventFilter passes
type EventMask int32

const (
	Inserted        EventMask = 0x0001
	Updated         EventMask = 0x0002
	Deleted         EventMask = 0x0004
	UpdatedEntered  EventMask = 0x0008 // Update that makes the entry start matching
	UpdatedLeft     EventMask = 0x0010 // Update that makes the entry stop matching
	UpdatedWithin   EventMask = 0x0020 // Update of an entry that matches before and after
	All                       = Inserted | Updated | Deleted
	KeySet                    = Inserted | Deleted
)

func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	names := []struct {
		bit  EventMask
		name string
	}{
		{Inserted, "inserted"},
		{Updated, "updated"},
		{Deleted, "deleted"},
		{UpdatedEntered, "updated_entered"},
		{UpdatedLeft, "updated_left"},
		{UpdatedWithin, "updated_within"},
	}
	var parts []string
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// MapEventFilter passes events of the masked types whose entry matches Filter.
// A nil Filter matches every entry.
type MapEventFilter struct {
	Class  string    `json:"@class" msgpack:"@class" cbor:"@class"`
	Mask   EventMask `json:"mask" msgpack:"mask" cbor:"mask"`
	Filter Filter    `json:"filter,omitempty" msgpack:"filter,omitempty" cbor:"filter,omitempty"`
}

func (f MapEventFilter) FilterClass() string { return f.Class }

// Events wraps f so only events in mask are delivered.
func Events(mask EventMask, f Filter) MapEventFilter {
	return MapEventFilter{Class: "filter.MapEventFilter", Mask: mask, Filter: f}
}
