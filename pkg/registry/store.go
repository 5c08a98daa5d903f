package registry

import (
    "errors"
    "sort"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/redhat-openstack/ironic/pkg/codec"
    "github.com/redhat-openstack/ironic/pkg/memkv"
)

// ErrNotRegistered is returned by Touch for hosts with no live record; the
// conductor is expected to re-register rather than keep heartbeating.
var ErrNotRegistered = errors.New("registry: conductor not registered")

// ConductorRecord describes one live worker: which host it runs on and which
// hardware drivers it has loaded.
type ConductorRecord struct {
    Hostname  string    `cbor:"hostname"`
    Drivers   []string  `cbor:"drivers"`
    UpdatedAt time.Time `cbor:"updated_at"`
}

// Store keeps track of registered conductors and their driver capabilities.
// Backed by memkv with TTL = the liveness window, so a conductor that stops
// heartbeating disappears from lookups on its own; readers detect staleness
// lazily, there is no active sweep.
type Store struct {
    kv       *memkv.Store
    c        codec.Codec
    liveness time.Duration

    mu sync.RWMutex
    // index of known hostnames for listings (avoids scanning KV shards);
    // entries whose KV document has expired are pruned on read
    hosts map[string]struct{}
}

// DefaultLiveness is the heartbeat window after which a silent conductor is
// considered offline.
const DefaultLiveness = 90 * time.Second

func NewStore(kv *memkv.Store, liveness time.Duration) *Store {
    if liveness <= 0 { liveness = DefaultLiveness }
    return &Store{kv: kv, c: codec.CBOR(), liveness: liveness, hosts: make(map[string]struct{})}
}

func keyConductor(hostname string) string { return "reg:conductor:" + hostname }

// Register creates or replaces the record for hostname. The driver set is
// replaced wholesale and the heartbeat window restarts; calling it again is
// an idempotent upsert. Concurrent registrations for different hostnames
// never touch each other's entries (the store is keyed by hostname).
func (s *Store) Register(hostname string, drivers []string) error {
    hostname = strings.TrimSpace(hostname)
    if hostname == "" {
        return errors.New("registry: missing hostname")
    }
    rec := ConductorRecord{
        Hostname:  hostname,
        Drivers:   dedupDrivers(drivers),
        UpdatedAt: time.Now().UTC(),
    }
    b, err := s.c.Marshal(&rec)
    if err != nil { return err }
    s.kv.Set(keyConductor(hostname), b, s.liveness)
    s.mu.Lock(); s.hosts[hostname] = struct{}{}; s.mu.Unlock()
    zap.L().Info("conductor registered", zap.String("hostname", hostname), zap.Strings("drivers", rec.Drivers))
    return nil
}

// Touch refreshes the heartbeat for hostname without changing its drivers.
func (s *Store) Touch(hostname string) error {
    var missing bool
    s.kv.Update(keyConductor(hostname), s.liveness, func(old []byte) []byte {
        if old == nil {
            missing = true
            return nil
        }
        return old
    })
    if missing {
        return ErrNotRegistered
    }
    return nil
}

// Unregister drops the record immediately (clean shutdown).
func (s *Store) Unregister(hostname string) {
    s.kv.Delete(keyConductor(hostname))
    s.mu.Lock(); delete(s.hosts, hostname); s.mu.Unlock()
    zap.L().Info("conductor unregistered", zap.String("hostname", hostname))
}

// IsAlive reports whether hostname has a record inside its liveness window.
func (s *Store) IsAlive(hostname string) bool {
    _, ok := s.kv.Get(keyConductor(hostname))
    return ok
}

// Get returns the live record for hostname.
func (s *Store) Get(hostname string) (ConductorRecord, bool) {
    b, ok := s.kv.Get(keyConductor(hostname))
    if !ok {
        s.prune(hostname)
        return ConductorRecord{}, false
    }
    var rec ConductorRecord
    if err := s.c.Unmarshal(b, &rec); err != nil {
        zap.L().Warn("corrupt conductor record", zap.String("hostname", hostname), zap.Error(err))
        return ConductorRecord{}, false
    }
    return rec, true
}

// HostsForDriver returns the hostnames of all currently-live conductors that
// advertise driver, in sorted order. Empty when none do. Computed fresh on
// every call so registry churn is visible immediately.
func (s *Store) HostsForDriver(driver string) []string {
    s.mu.RLock()
    ids := make([]string, 0, len(s.hosts))
    for h := range s.hosts { ids = append(ids, h) }
    s.mu.RUnlock()

    var out []string
    for _, h := range ids {
        rec, ok := s.Get(h)
        if !ok { continue }
        for _, d := range rec.Drivers {
            if d == driver {
                out = append(out, h)
                break
            }
        }
    }
    sort.Strings(out)
    return out
}

// prune drops an index entry whose KV document has expired.
func (s *Store) prune(hostname string) {
    s.mu.Lock()
    if _, ok := s.hosts[hostname]; ok {
        if _, live := s.kv.Get(keyConductor(hostname)); !live {
            delete(s.hosts, hostname)
        }
    }
    s.mu.Unlock()
}

func dedupDrivers(in []string) []string {
    m := make(map[string]struct{}, len(in))
    for _, d := range in {
        d = strings.TrimSpace(d)
        if d != "" { m[d] = struct{}{} }
    }
    out := make([]string, 0, len(m))
    for d := range m { out = append(out, d) }
    sort.Strings(out)
    return out
}
