package ttlcache

import "errors"

var (
	// ErrEmptyKey is returned when an empty string is used as a key.
	ErrEmptyKey = errors.New("ttlcache: empty key")

	// ErrClosed is returned when a write is attempted on a closed cache.
	ErrClosed = errors.New("ttlcache: cache is closed")
)
