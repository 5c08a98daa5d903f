package bus

import (
    "context"
    "net"
)

// Kind identifies the link type carrying a session, for ranking when more
// than one session to the same conductor exists.
type Kind int

const (
    KindUnknown Kind = iota
    KindMem
    KindTCP
    KindQUIC
)

func (k Kind) String() string {
    switch k {
    case KindMem:
        return "mem"
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    default:
        return "unknown"
    }
}

// PeerInfo bundles the remote conductor's identity and addressing hint.
// Hostname is learned from the hello exchange and may be empty before it.
type PeerInfo struct {
    Hostname string
    Addr     string
}

// Stream is a bidirectional frame stream. Exactly one reader and one writer
// goroutine are expected per side.
type Stream interface {
    // SendBytes sends one frame (a marshaled envelope) as opaque bytes.
    SendBytes([]byte) error
    // RecvBytes receives the next frame.
    RecvBytes() ([]byte, error)
    Close() error
}

// Session is one connection to a peer process.
type Session interface {
    Peer() PeerInfo
    SetPeer(PeerInfo)
    TransportKind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr

    // OpenStream returns the session's envelope stream. Transports without
    // multiplexing return a single shared stream.
    OpenStream(ctx context.Context) (Stream, error)
    // AcceptStream waits for the peer-opened stream (serving side).
    AcceptStream(ctx context.Context) (Stream, error)

    Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    Addr() net.Addr
    Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
    Kind() Kind
    Listen(ctx context.Context, address string) (Listener, error)
    Dial(ctx context.Context, address string) (Session, error)
}
