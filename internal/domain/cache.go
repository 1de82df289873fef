package domain

import (
	"context"
	"time"
)

// CacheStore is a byte-level key-value store with per-key TTL. The engine
// owns key namespaces and serialization; implementations only move bytes.
// The store is an optional dependency: when caching is disabled a no-op
// implementation stands in and every Get is a miss.
type CacheStore interface {
	// Get retrieves the value for key. A miss returns (nil, nil).
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Ping checks if the cache is available.
	Ping(ctx context.Context) error
}
