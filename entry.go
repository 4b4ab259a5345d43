package ttlcache

import (
	"time"
)

// CacheEntry is a key-value pair with an expiration time.
// It is a snapshot of a stored entry: mutating it never affects the cache.
type CacheEntry[V any] struct {
	// Key is the key of the entry.
	Key string

	// Value is the value associated with the key.
	Value V

	// ExpiresAt is the expiration time of the entry.
	// The entry is live strictly before this instant and expired from it onward.
	ExpiresAt time.Time
}

// RemovalReason describes why an entry was removed from the cache.
type RemovalReason uint8

const (
	// ReasonManual indicates the entry was removed by an explicit Remove call.
	ReasonManual RemovalReason = iota

	// ReasonExpired indicates the entry was collected by the background sweep
	// after its expiration time lapsed.
	ReasonExpired
)

// String returns the reason as a human-readable word.
func (r RemovalReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// EvictionRecord is the snapshot of a removed entry delivered to eviction observers.
type EvictionRecord[V any] struct {
	CacheEntry[V]

	// Reason is why the entry was removed.
	Reason RemovalReason
}

// entry is the stored representation of a cache entry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired reports whether the entry is dead at the given instant.
// An entry dies at exactly its expiration time.
func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.After(now)
}
