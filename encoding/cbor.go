package encoding

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR serializes with fxamacker/cbor using Core Deterministic encoding
// (RFC 8949), so equal values always produce identical bytes.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR constructs a deterministic CBOR serializer.
func NewCBOR() (CBOR, error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR() CBOR {
	c, err := NewCBOR()
	if err != nil {
		panic(err)
	}
	return c
}

func (CBOR) Format() string { return "cbor" }

func (c CBOR) Serialize(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c CBOR) Deserialize(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
