package loader

import (
	"context"
	"time"

	ttlcache "github.com/karupanerura/ttl-cache"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/singleflight"
)

// Source is an interface for loading data from an external source.
type Source[V any] interface {
	// Load retrieves the value for the given key.
	// It should return an error if the value cannot be produced; errors are
	// propagated to callers and never cached.
	Load(ctx context.Context, key string) (V, error)
}

// SourceFunc is a function type that implements the Source interface.
type SourceFunc[V any] func(ctx context.Context, key string) (V, error)

// Load calls the function.
func (f SourceFunc[V]) Load(ctx context.Context, key string) (V, error) {
	return f(ctx, key)
}

// SingleFlightLoader reads through a cache: hits are served from the cache
// and misses are loaded from a source, with concurrent loads for the same
// key collapsed into one source call whose result all waiters share.
// Loaded values are stored with a fixed lifetime before being returned.
type SingleFlightLoader[V any] struct {
	cache   *ttlcache.Cache[V]
	source  Source[V]
	ttl     time.Duration
	cloner  ttlcache.ValueCloner[V]
	context func() context.Context

	group singleflight.Group
}

// NewSingleFlightLoader creates a loader over the given cache and source.
// Loaded values are stored with the given lifetime.
func NewSingleFlightLoader[V any](cache *ttlcache.Cache[V], source Source[V], ttl time.Duration, opts ...Option[V]) *SingleFlightLoader[V] {
	loader := &SingleFlightLoader[V]{
		cache:   cache,
		source:  source,
		ttl:     ttl,
		cloner:  ttlcache.NopValueCloner[V]{},
		context: context.Background,
	}
	for _, o := range opts {
		o.apply(loader)
	}
	return loader
}

// GetOrLoad retrieves the value for the key from the cache, loading it from
// the source on a miss. The load runs on a context from the configured
// provider so that it outlives the triggering caller; the caller's context
// only bounds its own wait. When one load is shared by several callers, each
// caller receives the result through the configured cloner. A panicking
// source is reported as an error to every waiter, not as a crash.
func (l *SingleFlightLoader[V]) GetOrLoad(ctx context.Context, key string) (V, error) {
	var zero V
	if key == "" {
		return zero, ttlcache.ErrEmptyKey
	}
	if value, ok := l.cache.Get(key); ok {
		return value, nil
	}

	ch := l.group.DoChan(key, func() (value any, err error) {
		if recovered := panics.Try(func() {
			value, err = l.loadAndStore(l.context(), key)
		}); recovered != nil {
			return nil, recovered.AsError()
		}
		return value, err
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return zero, result.Err
		}
		// Comma-ok: a source may legitimately load a nil value.
		value, _ := result.Val.(V)
		// A sole receiver keeps the loaded value as is.
		if result.Shared {
			value = l.cloner.CloneValue(value)
		}
		return value, nil

	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// loadAndStore loads the value from the source and stores it in the cache.
func (l *SingleFlightLoader[V]) loadAndStore(ctx context.Context, key string) (V, error) {
	value, err := l.source.Load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	if err := l.cache.Set(key, value, l.ttl); err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}
