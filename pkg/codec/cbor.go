package codec

import (
    "reflect"

    cbor "github.com/fxamacker/cbor/v2"
)

type cborCodec struct{ enc cbor.EncMode; dec cbor.DecMode }

// CBOR returns a deterministic CBOR codec (RFC 8949) with the core profile.
// Encoding is canonical so the same document always produces the same bytes.
// Untyped maps decode as map[string]any so payload fields stay addressable
// after a roundtrip.
func CBOR() Codec {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil { panic(err) }
    dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
    if err != nil { panic(err) }
    return cborCodec{enc: em, dec: dm}
}

func (c cborCodec) ContentType() string { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
