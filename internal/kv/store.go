package kv

import (
	"context"
	"time"
)

// Store is the shared key-value contract every piece of transient auth state
// lives behind: verification codes, cooldown locks, attempt counters, refresh
// token mappings, and the access token blacklist. The store is the sole
// source of truth and the only synchronization point between concurrent
// request handlers, so implementations must be safe for concurrent use and
// must never cache keys in-process.
type Store interface {
	// Get returns the value stored at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key with the given expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IncrementWithTTL atomically increments the counter at key and applies
	// ttl when this increment created the key. The returned count includes
	// this call. The increment and the expiry must be applied as one atomic
	// step so a crash cannot leave a counter without an expiry.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL reports the remaining lifetime of key. It returns zero when the
	// key is absent or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
