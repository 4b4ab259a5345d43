package ttlcache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// sweepLoop runs the background sweeper at the configured interval.
// It is stopped by canceling the context passed from New.
func (c *Cache[V]) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.options.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

// sweepExpired removes every expired entry and notifies eviction observers.
// The whole scan uses one lock acquisition and one clock reading, so a sweep
// is atomic with respect to concurrent writes. Removed values are owned by
// their records, so no cloning happens and no caller-supplied code runs while
// the lock is held. Records are delivered after the lock is released. The
// sweeper is the only source of ReasonExpired records: each expired entry is
// observed exactly once.
func (c *Cache[V]) sweepExpired() {
	now := c.options.clock.Now()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var victims []EvictionRecord[V]
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			victims = append(victims, EvictionRecord[V]{
				CacheEntry: CacheEntry[V]{
					Key:       key,
					Value:     e.value,
					ExpiresAt: e.expiresAt,
				},
				Reason: ReasonExpired,
			})
		}
	}
	c.mu.Unlock()

	if len(victims) == 0 {
		return
	}
	c.options.logger.Debug("swept expired entries", zap.Int("count", len(victims)))
	for _, record := range victims {
		c.notifyEviction(record)
	}
}
