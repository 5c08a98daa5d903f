// Package quic is the QUIC bus transport. Each request/cast can ride its
// own stream, but the client keeps a single long-lived stream per session
// which is all the dispatch layer needs.
package quic

import (
    "context"
    "crypto/ecdsa"
    "crypto/elliptic"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "crypto/x509/pkix"
    "encoding/binary"
    "errors"
    "io"
    "math/big"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"

    "github.com/redhat-openstack/ironic/pkg/bus"
)

const alpnProto = "ironic-rpc"

type Transport struct {
    // TLS overrides the generated self-signed config when set.
    TLS        *tls.Config
    KeepAlive  time.Duration
    IdleTimeout time.Duration
}

func New() *Transport { return &Transport{KeepAlive: 15 * time.Second, IdleTimeout: 2 * time.Minute} }

func (t *Transport) Kind() bus.Kind { return bus.KindQUIC }

func (t *Transport) quicConfig() *quicgo.Config {
    return &quicgo.Config{
        KeepAlivePeriod: t.KeepAlive,
        MaxIdleTimeout:  t.IdleTimeout,
    }
}

func (t *Transport) serverTLS() (*tls.Config, error) {
    if t.TLS != nil { return t.TLS, nil }
    cert, err := selfSignedCert()
    if err != nil { return nil, err }
    return &tls.Config{
        Certificates: []tls.Certificate{cert},
        NextProtos:   []string{alpnProto},
        MinVersion:   tls.VersionTLS13,
    }, nil
}

func (t *Transport) clientTLS() *tls.Config {
    if t.TLS != nil { return t.TLS }
    // Conductors authenticate at the hello layer, not via PKI.
    return &tls.Config{
        InsecureSkipVerify: true,
        NextProtos:         []string{alpnProto},
        MinVersion:         tls.VersionTLS13,
    }
}

func (t *Transport) Listen(ctx context.Context, address string) (bus.Listener, error) {
    tc, err := t.serverTLS()
    if err != nil { return nil, err }
    ln, err := quicgo.ListenAddr(address, tc, t.quicConfig())
    if err != nil { return nil, err }
    go func() { <-ctx.Done(); _ = ln.Close() }()
    return &listener{ln: ln}, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (bus.Session, error) {
    conn, err := quicgo.DialAddr(ctx, address, t.clientTLS(), t.quicConfig())
    if err != nil { return nil, err }
    return newSession(conn), nil
}

type listener struct{ ln *quicgo.Listener }

func (l *listener) Addr() net.Addr { return l.ln.Addr() }
func (l *listener) Close() error   { return l.ln.Close() }

func (l *listener) Accept(ctx context.Context) (bus.Session, error) {
    conn, err := l.ln.Accept(ctx)
    if err != nil { return nil, err }
    return newSession(conn), nil
}

type session struct {
    peer bus.PeerInfo
    conn quicgo.Connection
}

func newSession(conn quicgo.Connection) *session {
    return &session{peer: bus.PeerInfo{Addr: conn.RemoteAddr().String()}, conn: conn}
}

func (s *session) Peer() bus.PeerInfo      { return s.peer }
func (s *session) SetPeer(pi bus.PeerInfo) { s.peer = pi }
func (s *session) TransportKind() bus.Kind { return bus.KindQUIC }
func (s *session) LocalAddr() net.Addr     { return s.conn.LocalAddr() }
func (s *session) RemoteAddr() net.Addr    { return s.conn.RemoteAddr() }

func (s *session) OpenStream(ctx context.Context) (bus.Stream, error) {
    st, err := s.conn.OpenStreamSync(ctx)
    if err != nil { return nil, err }
    return &qstream{s: st}, nil
}

func (s *session) AcceptStream(ctx context.Context) (bus.Stream, error) {
    st, err := s.conn.AcceptStream(ctx)
    if err != nil { return nil, err }
    return &qstream{s: st}, nil
}

func (s *session) Close() error { return s.conn.CloseWithError(0, "closed") }

type qstream struct {
    s   quicgo.Stream
    wmu sync.Mutex
}

func (q *qstream) Close() error { return q.s.Close() }

func (q *qstream) SendBytes(b []byte) error {
    q.wmu.Lock(); defer q.wmu.Unlock()
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := q.s.Write(lenbuf[:]); err != nil { return err }
    _, err := q.s.Write(b)
    return err
}

func (q *qstream) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(q.s, lenbuf[:]); err != nil { return nil, err }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n > (1 << 24) { return nil, errors.New("quic: invalid frame size") }
    buf := make([]byte, n)
    if _, err := io.ReadFull(q.s, buf); err != nil { return nil, err }
    return buf, nil
}

func selfSignedCert() (tls.Certificate, error) {
    key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
    if err != nil { return tls.Certificate{}, err }
    tmpl := &x509.Certificate{
        SerialNumber: big.NewInt(time.Now().UnixNano()),
        Subject:      pkix.Name{CommonName: "ironic-conductor"},
        NotBefore:    time.Now().Add(-time.Hour),
        NotAfter:     time.Now().Add(365 * 24 * time.Hour),
        KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
        ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        DNSNames:     []string{"localhost"},
        IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
    }
    der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
