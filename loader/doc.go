// Package loader provides read-through loading on top of a cache.
//
// A SingleFlightLoader serves hits from the cache and collapses concurrent
// loads for the same key into a single source call, so a cold or expired key
// costs one load no matter how many goroutines ask for it at once.
package loader
