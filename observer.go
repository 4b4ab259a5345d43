package ttlcache

import (
	"sync"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// OnEvicted registers an observer for entry removals.
// The observer receives a snapshot of every entry removed by Remove or by the
// background sweep, together with the removal reason. Observers run in
// registration order on the goroutine that removed the entry: the caller's
// goroutine for Remove, the sweeper's for expirations.
// A nil observer is ignored.
func (c *Cache[V]) OnEvicted(observe func(EvictionRecord[V])) {
	if observe == nil {
		return
	}

	c.observers.mu.Lock()
	defer c.observers.mu.Unlock()
	c.observers.onEvicted = append(c.observers.onEvicted, observe)
}

// OnUpdated registers an observer for entry overwrites.
// The observer receives a snapshot of the entry after the write: the new
// value and the new expiration time. Observers run in registration order on
// the writer's goroutine. A nil observer is ignored.
func (c *Cache[V]) OnUpdated(observe func(CacheEntry[V])) {
	if observe == nil {
		return
	}

	c.observers.mu.Lock()
	defer c.observers.mu.Unlock()
	c.observers.onUpdated = append(c.observers.onUpdated, observe)
}

// observerRegistry holds registered observers.
// It has its own lock so that delivery never contends with entry operations.
type observerRegistry[V any] struct {
	mu        sync.RWMutex
	onEvicted []func(EvictionRecord[V])
	onUpdated []func(CacheEntry[V])
}

func (r *observerRegistry[V]) evictionObservers() []func(EvictionRecord[V]) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	observers := make([]func(EvictionRecord[V]), len(r.onEvicted))
	copy(observers, r.onEvicted)
	return observers
}

func (r *observerRegistry[V]) updateObservers() []func(CacheEntry[V]) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	observers := make([]func(CacheEntry[V]), len(r.onUpdated))
	copy(observers, r.onUpdated)
	return observers
}

// notifyEviction delivers the record to every eviction observer.
// A panicking observer is recovered and logged; delivery continues with the
// next observer. Must not be called while holding the entry lock.
func (c *Cache[V]) notifyEviction(record EvictionRecord[V]) {
	for _, observe := range c.observers.evictionObservers() {
		if recovered := panics.Try(func() { observe(record) }); recovered != nil {
			c.options.logger.Error("eviction observer panicked",
				zap.String("key", record.Key),
				zap.Stringer("reason", record.Reason),
				zap.Error(recovered.AsError()))
		}
	}
}

// notifyUpdate delivers the snapshot to every update observer.
// Panic handling matches notifyEviction.
func (c *Cache[V]) notifyUpdate(entry CacheEntry[V]) {
	for _, observe := range c.observers.updateObservers() {
		if recovered := panics.Try(func() { observe(entry) }); recovered != nil {
			c.options.logger.Error("update observer panicked",
				zap.String("key", entry.Key),
				zap.Error(recovered.AsError()))
		}
	}
}
