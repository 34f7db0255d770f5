// Package hlc provides a hybrid logical clock used to mint request ids that
// stay unique and ordered across reconnects of the same client process.
package hlc

import (
	"fmt"
	"sync"
	"time"
)

// Clock issues strictly increasing timestamps for one client.
type Clock struct {
	clientID uint64
	wallTime int64
	logical  uint32
	mu       sync.Mutex
}

// Timestamp is a wall-clock reading plus a logical counter that breaks ties
// inside the same nanosecond reading.
type Timestamp struct {
	WallTime int64
	Logical  uint32
	ClientID uint64
}

// NewClock creates a clock for the given client.
func NewClock(clientID uint64) *Clock {
	return &Clock{
		clientID: clientID,
		wallTime: time.Now().UnixNano(),
	}
}

// Now returns a timestamp strictly after every timestamp previously returned.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := time.Now().UnixNano()
	if physicalNow > c.wallTime {
		c.wallTime = physicalNow
		c.logical = 0
	} else {
		// Wall clock stalled or stepped backwards
		c.logical++
	}

	return Timestamp{
		WallTime: c.wallTime,
		Logical:  c.logical,
		ClientID: c.clientID,
	}
}

// Compare returns -1, 0 or 1 ordering a against b.
func Compare(a, b Timestamp) int {
	switch {
	case a.WallTime < b.WallTime:
		return -1
	case a.WallTime > b.WallTime:
		return 1
	case a.Logical < b.Logical:
		return -1
	case a.Logical > b.Logical:
		return 1
	case a.ClientID < b.ClientID:
		return -1
	case a.ClientID > b.ClientID:
		return 1
	}
	return 0
}

// After returns true if a was issued after b
func After(a, b Timestamp) bool {
	return Compare(a, b) > 0
}

// String renders the timestamp as a compact token, e.g. "2a-17f3c0d2e4a1b000-0".
func (t Timestamp) String() string {
	return fmt.Sprintf("%x-%x-%x", t.ClientID, t.WallTime, t.Logical)
}
