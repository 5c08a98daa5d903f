// Package tcp is the plain TCP bus transport. A session maps to a single
// TCP connection carrying one bidirectional frame stream.
package tcp

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "io"
    "net"
    "sync"
    "time"

    "github.com/redhat-openstack/ironic/pkg/bus"
)

type Transport struct {
    DialTimeout time.Duration
}

func New() *Transport { return &Transport{DialTimeout: 10 * time.Second} }

func (t *Transport) Kind() bus.Kind { return bus.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (bus.Listener, error) {
    var lc net.ListenConfig
    ln, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    return &listener{ln: ln}, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (bus.Session, error) {
    d := net.Dialer{Timeout: t.DialTimeout}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    if tc, ok := c.(*net.TCPConn); ok { _ = tc.SetNoDelay(true) }
    return newSession(c), nil
}

type listener struct{ ln net.Listener }

func (l *listener) Addr() net.Addr { return l.ln.Addr() }
func (l *listener) Close() error   { return l.ln.Close() }

func (l *listener) Accept(ctx context.Context) (bus.Session, error) {
    type res struct {
        c   net.Conn
        err error
    }
    ch := make(chan res, 1)
    go func() { c, err := l.ln.Accept(); ch <- res{c, err} }()
    select {
    case <-ctx.Done():
        _ = l.ln.Close()
        return nil, ctx.Err()
    case r := <-ch:
        if r.err != nil { return nil, r.err }
        if tc, ok := r.c.(*net.TCPConn); ok { _ = tc.SetNoDelay(true) }
        return newSession(r.c), nil
    }
}

type session struct {
    peer bus.PeerInfo
    c    net.Conn
    br   *bufio.Reader
    bw   *bufio.Writer
    wmu  sync.Mutex
}

func newSession(c net.Conn) *session {
    return &session{
        peer: bus.PeerInfo{Addr: c.RemoteAddr().String()},
        c:    c,
        br:   bufio.NewReaderSize(c, 64<<10),
        bw:   bufio.NewWriterSize(c, 64<<10),
    }
}

func (s *session) Peer() bus.PeerInfo      { return s.peer }
func (s *session) SetPeer(pi bus.PeerInfo) { s.peer = pi }
func (s *session) TransportKind() bus.Kind { return bus.KindTCP }
func (s *session) LocalAddr() net.Addr     { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr    { return s.c.RemoteAddr() }
func (s *session) Close() error            { return s.c.Close() }

// TCP has no stream multiplexing; the connection itself is the stream.
func (s *session) OpenStream(context.Context) (bus.Stream, error)   { return (*stream)(s), nil }
func (s *session) AcceptStream(context.Context) (bus.Stream, error) { return (*stream)(s), nil }

type stream session

func (st *stream) Close() error { return nil }

func (st *stream) SendBytes(b []byte) error {
    st.wmu.Lock(); defer st.wmu.Unlock()
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := st.bw.Write(lenbuf[:]); err != nil { return err }
    if _, err := st.bw.Write(b); err != nil { return err }
    return st.bw.Flush()
}

func (st *stream) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(st.br, lenbuf[:]); err != nil { return nil, err }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n > (1 << 24) { return nil, errors.New("tcp: invalid frame size") }
    buf := make([]byte, n)
    if _, err := io.ReadFull(st.br, buf); err != nil { return nil, err }
    return buf, nil
}
