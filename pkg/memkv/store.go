package memkv

import (
    "sync"
    "sync/atomic"
    "time"
)

// Options tunes the store. The zero value is safe.
type Options struct {
    Shards int // shard count (default 64)
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 64 }
    return o
}

// Store is a sharded in-memory KV with per-key TTL. Expiry is lazy: an
// expired entry is dropped when a reader or writer next touches it, not by a
// background sweep. Readers therefore never observe a stale value, but the
// memory is reclaimed only on access. Values are copied on Set and Get.
type Store struct {
    opts   Options
    shards []shard
    nowFn  func() time.Time

    mSets    atomic.Uint64
    mGets    atomic.Uint64
    mHits    atomic.Uint64
    mExpired atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano; 0 = no expiry
}

func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{opts: opts, shards: make([]shard, opts.Shards), nowFn: time.Now}
    for i := range s.shards {
        s.shards[i].m = make(map[string]*entry)
    }
    return s
}

// Close exists for symmetry with persistent backends; the in-memory store
// has nothing to tear down.
func (s *Store) Close() {}

func (s *Store) shardFor(key string) *shard {
    // FNV-1a 64
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[int(h%uint64(len(s.shards)))]
}

func (s *Store) expired(e *entry) bool {
    return e.expireAt != 0 && s.nowFn().UnixNano() >= e.expireAt
}

func (s *Store) deadline(ttl time.Duration) int64 {
    if ttl <= 0 { return 0 }
    return s.nowFn().Add(ttl).UnixNano()
}

func copyBytes(b []byte) []byte {
    out := make([]byte, len(b))
    copy(out, b)
    return out
}

// Set stores val under key with the given TTL (0 = no expiry). Returns true
// when the key did not previously exist (or had expired).
func (s *Store) Set(key string, val []byte, ttl time.Duration) (created bool) {
    s.mSets.Add(1)
    val = copyBytes(val)
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    old, ok := sh.m[key]
    if ok && s.expired(old) {
        s.mExpired.Add(1)
        ok = false
    }
    sh.m[key] = &entry{val: val, expireAt: s.deadline(ttl)}
    return !ok
}

// Get returns the live value for key.
func (s *Store) Get(key string) ([]byte, bool) {
    s.mGets.Add(1)
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok { return nil, false }
    if s.expired(e) {
        s.dropExpired(sh, key, e)
        return nil, false
    }
    s.mHits.Add(1)
    return copyBytes(e.val), true
}

func (s *Store) dropExpired(sh *shard, key string, seen *entry) {
    sh.mu.Lock()
    if cur, ok := sh.m[key]; ok && cur == seen {
        delete(sh.m, key)
        s.mExpired.Add(1)
    }
    sh.mu.Unlock()
}

// Delete removes key; returns true when a live entry was removed.
func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    delete(sh.m, key)
    return !s.expired(e)
}

// Update applies fn to the current live value (nil when absent) and stores
// the result with the given TTL. A nil return from fn deletes the key. The
// whole read-modify-write is atomic with respect to the key.
func (s *Store) Update(key string, ttl time.Duration, fn func(old []byte) []byte) {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    var old []byte
    if e, ok := sh.m[key]; ok && !s.expired(e) {
        old = e.val
    }
    out := fn(old)
    if out == nil {
        delete(sh.m, key)
        return
    }
    sh.m[key] = &entry{val: copyBytes(out), expireAt: s.deadline(ttl)}
}

// TTL reports the remaining lifetime of key. ok is false when the key is
// absent or expired; d is 0 for keys without expiry.
func (s *Store) TTL(key string) (d time.Duration, ok bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, found := sh.m[key]
    sh.mu.RUnlock()
    if !found || s.expired(e) { return 0, false }
    if e.expireAt == 0 { return 0, true }
    return time.Duration(e.expireAt - s.nowFn().UnixNano()), true
}

// Metrics is a counters snapshot.
type Metrics struct {
    Sets    uint64
    Gets    uint64
    Hits    uint64
    Expired uint64
}

func (s *Store) Metrics() Metrics {
    return Metrics{
        Sets:    s.mSets.Load(),
        Gets:    s.mGets.Load(),
        Hits:    s.mHits.Load(),
        Expired: s.mExpired.Load(),
    }
}
