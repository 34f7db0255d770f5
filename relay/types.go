// Package relay forwards map events from cache listeners to external message
// brokers. Each configured sink gets its own worker and bounded queue, so a
// slow broker only delays its own deliveries.
package relay

// Operation codes for relayed changes
const (
	OpInsert uint8 = 0
	OpUpdate uint8 = 1
	OpDelete uint8 = 2
)

// ChangeEvent is one map event prepared for relaying
type ChangeEvent struct {
	Seq       uint64 // Monotonic per relay
	Cache     string
	Operation uint8
	Key       string // Rendered key, also the broker partition key
	Before    any    // Nil for inserts and lite registrations
	After     any    // Nil for deletes and lite registrations
	Synthetic bool
	Timestamp int64 // Unix ms when received
}

// Sink is a destination for relayed events (e.g. Kafka, NATS)
type Sink interface {
	// Publish sends one message to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter decides whether an event is relayed
type Filter interface {
	Match(cache, key string) bool
}
