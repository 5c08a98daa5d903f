// Package memkv is a small sharded in-memory key/value store with per-key
// TTL and lazy expiry. It backs the conductor registry; swapping in a
// persistent backend means reimplementing the same handful of operations.
package memkv
