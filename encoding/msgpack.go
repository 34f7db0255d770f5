package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes with vmihailenco/msgpack/v5.
//
// Map keys are sorted on encode so that equal maps produce equal bytes; listener
// indexes compare serialized forms.
type Msgpack struct{}

func (Msgpack) Format() string { return "msgpack" }

// Serialize encodes a value to msgpack format.
func (Msgpack) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Deserialize decodes msgpack data using loose interface decoding.
// When decoding into interface{}, strings are preserved as Go strings (not []byte).
func (Msgpack) Deserialize(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	return dec.Decode(v)
}
