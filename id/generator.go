package id

import (
	"strconv"
	"sync/atomic"

	"github.com/oracle/coherence-js-client-sub001/hlc"
)

// Generator mints opaque request ids used to correlate asynchronous
// responses on a shared stream. Ids only need to be unique per connection.
type Generator interface {
	NextID() string
}

// CounterGenerator issues sequential decimal ids. Thread-safe.
type CounterGenerator struct {
	next atomic.Uint64
}

// NewCounterGenerator creates a generator whose first id is "1".
func NewCounterGenerator() *CounterGenerator {
	return &CounterGenerator{}
}

// NextID returns the next sequential id.
func (g *CounterGenerator) NextID() string {
	return strconv.FormatUint(g.next.Add(1), 10)
}

// HLCGenerator generates ids from a hybrid logical clock, so ids stay unique
// across connections opened by the same client.
// Thread-safe via the clock's internal mutex.
type HLCGenerator struct {
	clock *hlc.Clock
}

// NewHLCGenerator creates a new ID generator backed by the given clock.
func NewHLCGenerator(clock *hlc.Clock) *HLCGenerator {
	return &HLCGenerator{clock: clock}
}

// NextID returns the clock's next timestamp rendered as a token.
func (g *HLCGenerator) NextID() string {
	return g.clock.Now().String()
}
