// Package cachetest provides deterministic helpers for testing cache behavior.
package cachetest

import (
	"sync"
	"time"

	ttlcache "github.com/karupanerura/ttl-cache"
)

// Clock is a settable clock for pinning expiration decisions in tests.
// Unlike a plain fixed clock it is safe to read and advance concurrently,
// so the background sweeper may share it with the test goroutine.
type Clock struct {
	mu  sync.RWMutex
	now time.Time
}

var _ ttlcache.Clock = (*Clock)(nil)

// NewClock returns a clock pinned to the given time.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the pinned time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set pins the clock to the given time.
func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Recorder collects the records delivered to cache observers.
// Register ObserveEviction with Cache.OnEvicted and ObserveUpdate with
// Cache.OnUpdated. All methods are safe for concurrent use.
type Recorder[V any] struct {
	mu        sync.Mutex
	evictions []ttlcache.EvictionRecord[V]
	updates   []ttlcache.CacheEntry[V]
}

// ObserveEviction records an eviction.
func (r *Recorder[V]) ObserveEviction(record ttlcache.EvictionRecord[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, record)
}

// ObserveUpdate records an update.
func (r *Recorder[V]) ObserveUpdate(entry ttlcache.CacheEntry[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, entry)
}

// Evictions returns a copy of the recorded evictions in delivery order.
func (r *Recorder[V]) Evictions() []ttlcache.EvictionRecord[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]ttlcache.EvictionRecord[V], len(r.evictions))
	copy(records, r.evictions)
	return records
}

// Updates returns a copy of the recorded updates in delivery order.
func (r *Recorder[V]) Updates() []ttlcache.CacheEntry[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]ttlcache.CacheEntry[V], len(r.updates))
	copy(entries, r.updates)
	return entries
}

// WaitEvictions polls until at least n evictions have been recorded or the
// timeout elapses, and reports whether the count was reached.
func (r *Recorder[V]) WaitEvictions(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		count := len(r.evictions)
		r.mu.Unlock()

		if count >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
