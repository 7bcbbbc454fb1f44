// Package kvstore defines the distributed key/value contract the core state
// machines depend on: TTL'd puts, an append-only sequential lock primitive,
// and a write-triggered watch for the dirty sentinel. This mirrors the etcd
// semantics the original implementation relied on (see
// other_examples' forkkit-coordinate leader client for the shape of an
// idiomatic Go etcd wrapper) without committing kontrol itself to etcd.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist (or has expired).
var ErrNotFound = errors.New("kvstore: key not found")

// Item is a single KV leaf, as returned by List.
type Item struct {
	Key   string
	Value string
}

// Store is the contract the sequence actor, leader elector, and callback
// driver depend on. Implementations must be safe for concurrent use.
type Store interface {
	// Put writes value at key with the given TTL (0 means no expiry).
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Get reads the value at key. Returns ErrNotFound if absent/expired.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. It is not an error if the key is already absent.
	Delete(ctx context.Context, key string) error

	// List returns every leaf under prefix (recursive).
	List(ctx context.Context, prefix string) ([]Item, error)

	// Refresh extends the TTL of an existing key without changing its value.
	// Returns ErrNotFound if the key has already expired/vanished.
	Refresh(ctx context.Context, key string, ttl time.Duration) error

	// AppendCreate creates a new key under prefix with a strictly increasing
	// numeric suffix (e.g. prefix "leader-" -> "leader-00000042"), analogous
	// to etcd's atomic "append" write. Returns the full key created.
	AppendCreate(ctx context.Context, prefix, value string, ttl time.Duration) (string, error)

	// Notify writes to a notification key, waking any WatchOnce callers
	// blocked on it. The value is irrelevant.
	Notify(ctx context.Context, key string) error

	// WatchOnce blocks until key is notified, ctx is done, or timeout
	// elapses (timeout <= 0 means no timeout). A timeout is not an error:
	// it returns (false, nil).
	WatchOnce(ctx context.Context, key string, timeout time.Duration) (woken bool, err error)
}
