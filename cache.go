package ttlcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache is an in-process key-value cache with per-entry expiration.
//
// Every entry carries an absolute expiration time. Reads treat expired
// entries as absent; a background sweeper removes them and reports each
// removal to eviction observers. The zero value is not usable; create a
// cache with New and release it with Close.
type Cache[V any] struct {
	options   options[V]
	observers observerRegistry[V]

	mu      sync.RWMutex
	entries map[string]entry[V]
	closed  bool

	stop context.CancelFunc
}

// New creates a cache and starts its background sweeper.
// The sweeper runs until Close is called. Degenerate option values are
// normalized, never rejected.
func New[V any](opts ...Option[V]) *Cache[V] {
	options := defaultOptions[V]()
	for _, opt := range opts {
		opt.apply(&options)
	}
	options.normalize()

	c := &Cache[V]{
		options: options,
		entries: map[string]entry[V]{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	go c.sweepLoop(ctx)
	return c
}

// Set stores a value under the key for the given lifetime, overwriting any
// existing entry. A zero or negative ttl produces an entry that is already
// expired: reads will not see it and the next sweep removes it. A ttl beyond
// the configured maximum is clamped.
//
// Overwriting a live entry notifies update observers with the new snapshot.
// The first write for a key, or a write over an expired entry, notifies
// nobody. Returns ErrEmptyKey for an empty key and ErrClosed after Close.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	requested := ttl
	clamped := requested > c.options.maxTTL
	if clamped {
		ttl = c.options.maxTTL
	}
	if ttl < 0 {
		ttl = 0
	}

	now := c.options.clock.Now()
	if err := c.store(key, value, now, now.Add(ttl)); err != nil {
		return err
	}
	// Logged after the write so a rejected write leaves no diagnostic.
	if clamped {
		c.options.logger.Warn("ttl exceeds the maximum, clamping",
			zap.String("key", key),
			zap.Duration("ttl", requested),
			zap.Duration("max_ttl", c.options.maxTTL))
	}
	return nil
}

// SetUntil stores a value under the key with an absolute expiration time,
// overwriting any existing entry. A non-future expiration produces an entry
// that is already expired; an expiration beyond now plus the configured
// maximum lifetime is clamped. Notification and error behavior match Set.
func (c *Cache[V]) SetUntil(key string, value V, expiresAt time.Time) error {
	if key == "" {
		return ErrEmptyKey
	}

	now := c.options.clock.Now()
	requested := expiresAt
	latest := now.Add(c.options.maxTTL)
	clamped := requested.After(latest)
	if clamped {
		expiresAt = latest
	}
	if expiresAt.Before(now) {
		expiresAt = now
	}

	if err := c.store(key, value, now, expiresAt); err != nil {
		return err
	}
	if clamped {
		c.options.logger.Warn("expiration exceeds the maximum ttl, clamping",
			zap.String("key", key),
			zap.Time("expires_at", requested),
			zap.Duration("max_ttl", c.options.maxTTL))
	}
	return nil
}

// store replaces the entry under the write lock and notifies update
// observers after the lock is released. The cloner is caller-supplied code
// and must not run while the lock is held, so the value is cloned up front.
func (c *Cache[V]) store(key string, value V, now, expiresAt time.Time) error {
	stored := c.options.cloner.CloneValue(value)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev, found := c.entries[key]
	c.entries[key] = entry[V]{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()

	if found && !prev.expired(now) {
		c.notifyUpdate(CacheEntry[V]{
			Key:       key,
			Value:     c.options.cloner.CloneValue(value),
			ExpiresAt: expiresAt,
		})
	}
	return nil
}

// Get retrieves the value for the key.
// It reports false if the key is absent or its entry has expired, even when
// the sweeper has not collected the entry yet. Reading never extends an
// entry's lifetime.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.options.clock.Now()) {
		var zero V
		return zero, false
	}
	return c.options.cloner.CloneValue(e.value), true
}

// GetExpiration retrieves the expiration time of the live entry for the key.
// It reports false if the key is absent or expired.
func (c *Cache[V]) GetExpiration(key string) (time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(c.options.clock.Now()) {
		return time.Time{}, false
	}
	return e.expiresAt, true
}

// Contains reports whether a live entry exists for the key.
func (c *Cache[V]) Contains(key string) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	return ok && !e.expired(c.options.clock.Now())
}

// Remove deletes the live entry for the key and reports whether one existed.
// A successful removal notifies eviction observers with ReasonManual on the
// caller's goroutine before returning. Removing an absent or expired key
// reports false; an expired entry is left for the sweeper so that its
// expiration is still observed exactly once.
func (c *Cache[V]) Remove(key string) bool {
	now := c.options.clock.Now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	c.mu.Unlock()

	// The removed entry's value is owned by the record now: no clone needed.
	c.notifyEviction(EvictionRecord[V]{
		CacheEntry: CacheEntry[V]{
			Key:       key,
			Value:     e.value,
			ExpiresAt: e.expiresAt,
		},
		Reason: ReasonManual,
	})
	return true
}

// Keys returns the keys of all live entries.
// The result is a snapshot taken at one clock reading; it stays valid after
// concurrent writes. Order is unspecified.
func (c *Cache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.options.clock.Now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Entries returns snapshots of all live entries.
// Values pass through the configured cloner. Order is unspecified.
func (c *Cache[V]) Entries() []CacheEntry[V] {
	c.mu.RLock()
	now := c.options.clock.Now()
	entries := make([]CacheEntry[V], 0, len(c.entries))
	for key, e := range c.entries {
		if !e.expired(now) {
			entries = append(entries, CacheEntry[V]{
				Key:       key,
				Value:     e.value,
				ExpiresAt: e.expiresAt,
			})
		}
	}
	c.mu.RUnlock()

	// Clone outside the lock: the store keeps these values.
	for i := range entries {
		entries[i].Value = c.options.cloner.CloneValue(entries[i].Value)
	}
	return entries
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.options.clock.Now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the background sweeper and discards all entries without
// notifying observers. After Close, writes return ErrClosed and reads report
// absence. Close is idempotent and safe to call from an observer callback;
// it never waits for the sweeper goroutine, so a sweep in flight finishes
// its delivery on its own.
func (c *Cache[V]) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.entries = map[string]entry[V]{}
	}
	c.mu.Unlock()

	c.stop()
	return nil
}
