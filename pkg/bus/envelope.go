package bus

import (
    "crypto/rand"
    "fmt"
    "io"

    "github.com/redhat-openstack/ironic/pkg/codec"
)

// MsgKind tags an envelope's role in the exchange.
type MsgKind uint8

const (
    MsgHello    MsgKind = iota + 1 // first frame from the dialing side
    MsgHelloAck                    // serving side's identity + version ceiling
    MsgRequest                     // blocking call, reply expected
    MsgCast                        // fire-and-forget, no reply ever
    MsgReply                       // successful reply to a request
    MsgError                       // handler or routing failure for a request
)

// Envelope is one frame on the bus. Body is encoded separately with the
// codec named by ContentType so the framing never has to understand the
// payload.
type Envelope struct {
    ID          [16]byte `cbor:"id"`
    Kind        MsgKind  `cbor:"kind"`
    Topic       string   `cbor:"topic,omitempty"`
    Method      string   `cbor:"method,omitempty"`
    Version     string   `cbor:"version,omitempty"`
    ContentType string   `cbor:"content_type,omitempty"`
    Body        []byte   `cbor:"body,omitempty"`
    Error       string   `cbor:"error,omitempty"`
}

// Hello is the body of MsgHello/MsgHelloAck: who is on the other end, the
// highest RPC API version it accepts, and (for conductors) the topics it
// consumes.
type Hello struct {
    Hostname   string   `cbor:"hostname"`
    MaxVersion string   `cbor:"max_version"`
    Topics     []string `cbor:"topics,omitempty"`
}

// NewCorrelation generates a random 16-byte envelope id.
func NewCorrelation() (out [16]byte, err error) {
    _, err = io.ReadFull(rand.Reader, out[:])
    return
}

var envelopeCodec = codec.CBOR()

// EncodeFrame marshals the envelope for one Stream frame.
func (e *Envelope) EncodeFrame() ([]byte, error) { return envelopeCodec.Marshal(e) }

// DecodeFrame parses an envelope from one Stream frame.
func (e *Envelope) DecodeFrame(buf []byte) error { return envelopeCodec.Unmarshal(buf, e) }

// encodeBody marshals v using the codec registered for contentType.
func encodeBody(reg *codec.Registry, contentType string, v any) ([]byte, error) {
    c := reg.Get(contentType)
    if c == nil {
        return nil, fmt.Errorf("bus: no codec for %q", contentType)
    }
    return c.Marshal(v)
}

// decodeBody unmarshals an envelope body into v.
func decodeBody(reg *codec.Registry, contentType string, body []byte, v any) error {
    c := reg.Get(contentType)
    if c == nil {
        return fmt.Errorf("bus: no codec for %q", contentType)
    }
    return c.Unmarshal(body, v)
}
