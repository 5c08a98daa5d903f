// Package mem is an in-process bus transport using net.Pipe. It backs the
// test suite and single-process deployments where the API and conductor
// share a binary.
package mem

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "io"
    "net"
    "sync"

    "github.com/redhat-openstack/ironic/pkg/bus"
)

// Transport routes dials to named in-process listeners.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() bus.Kind { return bus.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (bus.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok {
        return nil, errors.New("mem: listener already exists")
    }
    l := &listener{name: name, newCh: make(chan *session, 8), closeCh: make(chan struct{})}
    t.listeners[name] = l
    go func() { <-ctx.Done(); _ = l.Close(); t.mu.Lock(); delete(t.listeners, name); t.mu.Unlock() }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (bus.Session, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, errors.New("mem: no such listener") }
    c1, c2 := net.Pipe()
    srv := &session{peer: bus.PeerInfo{Addr: name}, c: c1}
    cli := &session{peer: bus.PeerInfo{Addr: name}, c: c2}
    select {
    case l.newCh <- srv:
    default:
        _ = srv.Close()
        _ = cli.Close()
        return nil, errors.New("mem: listener backlog full")
    }
    go func() { <-ctx.Done(); _ = cli.Close() }()
    return cli, nil
}

type listener struct {
    name    string
    newCh   chan *session
    closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (bus.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("mem: listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    select { case <-l.closeCh: default: close(l.closeCh) }
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type session struct {
    mu   sync.Mutex
    peer bus.PeerInfo
    c    net.Conn
    br   *bufio.Reader
    bw   *bufio.Writer
}

func (s *session) Peer() bus.PeerInfo       { return s.peer }
func (s *session) SetPeer(pi bus.PeerInfo)  { s.peer = pi }
func (s *session) TransportKind() bus.Kind  { return bus.KindMem }
func (s *session) LocalAddr() net.Addr      { return s.c.LocalAddr() }
func (s *session) RemoteAddr() net.Addr     { return s.c.RemoteAddr() }

func (s *session) OpenStream(context.Context) (bus.Stream, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.br == nil {
        s.br = bufio.NewReader(s.c)
        s.bw = bufio.NewWriter(s.c)
    }
    return s, nil
}

func (s *session) AcceptStream(ctx context.Context) (bus.Stream, error) { return s.OpenStream(ctx) }
func (s *session) Close() error                                         { return s.c.Close() }

// Stream methods: length-prefixed frames (u32 LE).
func (s *session) SendBytes(b []byte) error {
    s.mu.Lock(); defer s.mu.Unlock()
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := s.bw.Write(lenbuf[:]); err != nil { return err }
    if _, err := s.bw.Write(b); err != nil { return err }
    return s.bw.Flush()
}

func (s *session) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(s.br, lenbuf[:]); err != nil { return nil, err }
    n := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if n > (1 << 24) { return nil, errors.New("mem: invalid frame size") }
    buf := make([]byte, n)
    if _, err := io.ReadFull(s.br, buf); err != nil { return nil, err }
    return buf, nil
}
