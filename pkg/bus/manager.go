package bus

import (
    "sort"
    "sync"
)

// Manager keeps at most one canonical Session per conductor host and applies
// a ranking policy when concurrent inbound/outbound links race.
type Manager struct {
    mu    sync.RWMutex
    peers map[string]Session
}

func NewManager() *Manager { return &Manager{peers: make(map[string]Session)} }

// Add registers a session for its peer hostname. If the host already has a
// canonical session the better-ranked one wins and the loser is closed.
// Returns the session now canonical for the host.
func (m *Manager) Add(s Session) Session {
    host := s.Peer().Hostname
    m.mu.Lock()
    defer m.mu.Unlock()
    cur, ok := m.peers[host]
    if !ok {
        m.peers[host] = s
        return s
    }
    if baseRank(s.TransportKind()) > baseRank(cur.TransportKind()) {
        m.peers[host] = s
        _ = cur.Close()
        return s
    }
    _ = s.Close()
    return cur
}

// Get returns the canonical session for a host (nil when none).
func (m *Manager) Get(host string) Session {
    m.mu.RLock(); defer m.mu.RUnlock()
    return m.peers[host]
}

// Drop forgets a session if it is still the canonical one for its host.
func (m *Manager) Drop(s Session) {
    host := s.Peer().Hostname
    m.mu.Lock()
    if cur, ok := m.peers[host]; ok && cur == s {
        delete(m.peers, host)
    }
    m.mu.Unlock()
}

// Hosts returns the connected hostnames in sorted order.
func (m *Manager) Hosts() []string {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := make([]string, 0, len(m.peers))
    for h := range m.peers { out = append(out, h) }
    sort.Strings(out)
    return out
}

// Close closes every session and clears the table.
func (m *Manager) Close() {
    m.mu.Lock()
    for h, s := range m.peers {
        _ = s.Close()
        delete(m.peers, h)
    }
    m.mu.Unlock()
}

// Preference order across link kinds; higher is better. In-process links
// beat everything, QUIC beats plain TCP.
func baseRank(k Kind) int {
    switch k {
    case KindMem:
        return 100
    case KindQUIC:
        return 90
    case KindTCP:
        return 80
    default:
        return 0
    }
}
