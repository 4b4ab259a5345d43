package ttlcache

import (
	"time"

	"go.uber.org/zap"
)

var (
	// DefaultSweepInterval is the interval between background sweeps when
	// no interval is configured.
	DefaultSweepInterval = 2 * time.Second

	// FallbackSweepInterval replaces configured sweep intervals that are
	// zero or negative.
	FallbackSweepInterval = 1 * time.Second

	// DefaultMaxTTL is the upper bound applied to entry lifetimes when no
	// bound is configured.
	DefaultMaxTTL = 365 * 24 * time.Hour
)

// Option is the interface for the options of the cache.
type Option[V any] interface {
	apply(*options[V])
}

type optionFunc[V any] func(*options[V])

func (f optionFunc[V]) apply(o *options[V]) {
	f(o)
}

// WithSweepInterval sets the interval between background sweeps.
// A zero or negative interval is normalized to FallbackSweepInterval.
func WithSweepInterval[V any](interval time.Duration) Option[V] {
	return optionFunc[V](func(o *options[V]) {
		o.sweepInterval = interval
	})
}

// WithMaxTTL sets the upper bound for entry lifetimes.
// Lifetimes beyond the bound are clamped to it on write.
// A zero or negative bound is normalized to DefaultMaxTTL.
func WithMaxTTL[V any](maxTTL time.Duration) Option[V] {
	return optionFunc[V](func(o *options[V]) {
		o.maxTTL = maxTTL
	})
}

// WithClock sets the clock to the cache.
func WithClock[V any](clock Clock) Option[V] {
	return optionFunc[V](func(o *options[V]) {
		o.clock = clock
	})
}

// WithCloner sets the value cloner to the cache.
// The default value cloner is NopValueCloner.
func WithCloner[V any](cloner ValueCloner[V]) Option[V] {
	return optionFunc[V](func(o *options[V]) {
		o.cloner = cloner
	})
}

// WithLogger sets the logger for cache diagnostics.
// The default logger discards everything.
func WithLogger[V any](logger *zap.Logger) Option[V] {
	return optionFunc[V](func(o *options[V]) {
		o.logger = logger
	})
}

type options[V any] struct {
	sweepInterval time.Duration
	maxTTL        time.Duration
	clock         Clock
	cloner        ValueCloner[V]
	logger        *zap.Logger
}

func defaultOptions[V any]() options[V] {
	return options[V]{
		sweepInterval: DefaultSweepInterval,
		maxTTL:        DefaultMaxTTL,
		clock:         SystemClock,
		cloner:        NopValueCloner[V]{},
		logger:        zap.NewNop(),
	}
}

// normalize replaces degenerate option values with usable ones.
// Construction never rejects configuration.
func (o *options[V]) normalize() {
	if o.sweepInterval <= 0 {
		o.sweepInterval = FallbackSweepInterval
	}
	if o.maxTTL <= 0 {
		o.maxTTL = DefaultMaxTTL
	}
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.cloner == nil {
		o.cloner = NopValueCloner[V]{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
}
