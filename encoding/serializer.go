// Package encoding provides the pluggable serializers used to turn cache keys,
// values and filters into the opaque byte payloads carried on the wire.
//
// Serializers are keyed by format name. The client and the cluster must agree
// on the format: a key serialized with "json" never matches a key serialized
// with "msgpack". Canonical key and filter forms used for listener indexes are
// the serialized bytes, so a serializer must be deterministic for the values
// used as keys.
package encoding

import (
	"fmt"
	"sort"
	"sync"
)

// Serializer converts values to and from bytes for one wire format.
// Implementations must be safe for concurrent use.
type Serializer interface {
	Format() string
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

var (
	registryMu  sync.RWMutex
	serializers = make(map[string]Serializer)
)

func init() {
	Register(JSON{})
	Register(Msgpack{})
	Register(MustCBOR())
}

// Register makes a serializer available under its format name, replacing any
// previous registration for the same name.
func Register(s Serializer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	serializers[s.Format()] = s
}

// Lookup returns the serializer registered for format.
func Lookup(format string) (Serializer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := serializers[format]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for format %q", format)
	}
	return s, nil
}

// Formats lists registered format names in sorted order.
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(serializers))
	for name := range serializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
