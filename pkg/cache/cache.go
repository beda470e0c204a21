// Package cache provides generic, thread-safe cache implementations
// used for the operation-scoped caches in the ledger: the IRI-to-id
// cache during statement building, the schema shape cache, and the
// per-session policy value cache.
//
// Two cache types are offered:
//   - Simple: no eviction policy, stores items until cleared
//   - LRU: least-recently-used eviction at a fixed capacity
//
// All implementations are safe for concurrent use and track basic
// statistics for observability.
package cache

import "errors"

// ErrInvalidKey is returned when a key is empty.
var ErrInvalidKey = errors.New("cache key cannot be empty")

// ErrInvalidCapacity is returned for non-positive LRU capacities.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Cache is the generic cache interface all implementations satisfy.
// The cache is parameterized by value type V for type safety.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if
	// found, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new
	// entry was created, false if an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Stats returns cache statistics.
	Stats() *Statistics
}

// NewSimple creates a cache with no eviction policy.
func NewSimple[V any]() (Cache[V], error) {
	return newSimpleCache[V](), nil
}

// NewLRU creates a cache that evicts the least recently used entry
// once maxSize entries are stored.
func NewLRU[V any](maxSize int) (Cache[V], error) {
	if maxSize <= 0 {
		return nil, ErrInvalidCapacity
	}
	return newLRUCache[V](maxSize), nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
