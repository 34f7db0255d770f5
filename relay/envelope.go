package relay

import (
	"encoding/json"
	"fmt"
)

const connectorName = "cachewatch"

// envelope is the broker payload: a Debezium-style change record so
// existing CDC consumers can read it without a custom decoder
type envelope struct {
	Before    any            `json:"before"`
	After     any            `json:"after"`
	Op        string         `json:"op"`
	TsMs      int64          `json:"ts_ms"`
	Source    envelopeSource `json:"source"`
	Key       string         `json:"key"`
	Synthetic bool           `json:"synthetic,omitempty"`
}

type envelopeSource struct {
	Connector string `json:"connector"`
	Cache     string `json:"cache"`
	Seq       uint64 `json:"seq"`
}

func opCode(op uint8) string {
	switch op {
	case OpInsert:
		return "c"
	case OpUpdate:
		return "u"
	case OpDelete:
		return "d"
	default:
		return "?"
	}
}

// Encode renders evt as a JSON change record
func Encode(evt ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Before:    evt.Before,
		After:     evt.After,
		Op:        opCode(evt.Operation),
		TsMs:      evt.Timestamp,
		Key:       evt.Key,
		Synthetic: evt.Synthetic,
		Source: envelopeSource{
			Connector: connectorName,
			Cache:     evt.Cache,
			Seq:       evt.Seq,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode change %d of %s: %w", evt.Seq, evt.Cache, err)
	}
	return data, nil
}

// Tombstone is the nil payload sent after a delete so compacted topics
// drop the key
func Tombstone() []byte {
	return nil
}
