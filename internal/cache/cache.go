// Package cache provides a bounded in-memory cache with per-entry TTL,
// oldest-first eviction and a background sweeper.
package cache

import "time"

// Cache defines a minimal string-keyed cache API with optional TTL per entry.
type Cache[V any] interface {
	// Get returns the value and whether it was present and not expired.
	Get(key string) (V, bool)

	// Set stores the value with the cache's default TTL.
	Set(key string, value V)

	// SetWithTTL stores the value with an explicit TTL. If ttl <= 0, the entry does not expire.
	SetWithTTL(key string, value V, ttl time.Duration)

	// Delete removes a key and reports whether it was present.
	Delete(key string) bool

	// Has reports whether a key is present and not expired.
	Has(key string) bool

	// Len returns the number of stored entries, expired or not.
	Len() int

	// Clear removes all entries.
	Clear()

	// PurgeExpired scans and removes expired entries, returning how many were removed.
	PurgeExpired() int
}
