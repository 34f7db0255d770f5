package encoding

import (
	"bytes"
	"encoding/json"
)

// JSON serializes with encoding/json. Numbers decoded into interface{} keep
// their textual form as json.Number so large integer keys survive a round trip.
type JSON struct{}

func (JSON) Format() string { return "json" }

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
