// Package cache provides a get-or-create cache with per-entry absolute or
// sliding expiration, prefix-scoped invalidation and hit/miss/eviction
// counters.
package cache
