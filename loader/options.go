package loader

import (
	"context"

	ttlcache "github.com/karupanerura/ttl-cache"
)

// Option is the interface for the options of the SingleFlightLoader.
type Option[V any] interface {
	apply(*SingleFlightLoader[V])
}

type optionFunc[V any] func(*SingleFlightLoader[V])

func (f optionFunc[V]) apply(l *SingleFlightLoader[V]) {
	f(l)
}

// WithCloner sets the value cloner used when one loaded result is handed to
// multiple callers. The default value cloner is ttlcache.NopValueCloner.
func WithCloner[V any](cloner ttlcache.ValueCloner[V]) Option[V] {
	return optionFunc[V](func(l *SingleFlightLoader[V]) {
		l.cloner = cloner
	})
}

// WithBackgroundContextProvider sets the context provider for loads.
// The provider must return a new context for each call.
// The default context provider is context.Background.
func WithBackgroundContextProvider[V any](provider func() context.Context) Option[V] {
	return optionFunc[V](func(l *SingleFlightLoader[V]) {
		l.context = provider
	})
}
