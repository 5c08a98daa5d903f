package bus

import (
    "context"
    "net"
    "testing"
)

type stubSession struct {
    peer   PeerInfo
    kind   Kind
    closed bool
}

func (s *stubSession) Peer() PeerInfo                             { return s.peer }
func (s *stubSession) SetPeer(pi PeerInfo)                        { s.peer = pi }
func (s *stubSession) TransportKind() Kind                        { return s.kind }
func (s *stubSession) LocalAddr() net.Addr                        { return nil }
func (s *stubSession) RemoteAddr() net.Addr                       { return nil }
func (s *stubSession) OpenStream(context.Context) (Stream, error) { return nil, nil }
func (s *stubSession) AcceptStream(context.Context) (Stream, error) {
    return nil, nil
}
func (s *stubSession) Close() error { s.closed = true; return nil }

func TestManagerKeepsHigherRankedSession(t *testing.T) {
    m := NewManager()
    tcp := &stubSession{peer: PeerInfo{Hostname: "cond-1"}, kind: KindTCP}
    if got := m.Add(tcp); got != tcp {
        t.Fatal("first session not adopted")
    }

    quic := &stubSession{peer: PeerInfo{Hostname: "cond-1"}, kind: KindQUIC}
    if got := m.Add(quic); got != quic {
        t.Fatal("higher-ranked session not adopted")
    }
    if !tcp.closed {
        t.Fatal("displaced session left open")
    }

    tcp2 := &stubSession{peer: PeerInfo{Hostname: "cond-1"}, kind: KindTCP}
    if got := m.Add(tcp2); got != quic {
        t.Fatal("lower-ranked session displaced the canonical one")
    }
    if !tcp2.closed {
        t.Fatal("rejected session left open")
    }
    if m.Get("cond-1") != quic {
        t.Fatal("canonical session lost")
    }
}

func TestManagerHostsSortedAndDrop(t *testing.T) {
    m := NewManager()
    for _, h := range []string{"cond-b", "cond-a", "cond-c"} {
        m.Add(&stubSession{peer: PeerInfo{Hostname: h}, kind: KindMem})
    }
    hosts := m.Hosts()
    if len(hosts) != 3 || hosts[0] != "cond-a" || hosts[1] != "cond-b" || hosts[2] != "cond-c" {
        t.Fatalf("hosts not sorted: %v", hosts)
    }

    s := m.Get("cond-b")
    m.Drop(s)
    if m.Get("cond-b") != nil {
        t.Fatal("dropped session still canonical")
    }
    if got := m.Hosts(); len(got) != 2 {
        t.Fatalf("hosts after drop: %v", got)
    }
}
