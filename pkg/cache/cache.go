// Package cache provides the resolver's on-disk and shared caches.
//
// Cached entries are immutable once committed: a given git ref's fetched
// tree never changes content, so backends only need existence-check-then-
// fetch races handled, not invalidation-under-read. The file backend
// commits entries by writing to a temp file and atomically renaming it into
// place so concurrent resolution runs (two CI jobs on one machine) never
// observe a partial write. The redis backend lets CI machines share
// registry and tag lookups.
package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for caching operations.
var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss is returned when an item is not found in cache.
	ErrCacheMiss = errors.New("cache miss")
)

// Cache stores immutable byte entries with optional expiry.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
