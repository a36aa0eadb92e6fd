package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultRetention is the sliding window applied to entries stored without
// an explicit expiration option.
const DefaultRetention = 30 * time.Minute

// DefaultCleanupInterval is how often a MemoryTable purges expired entries.
const DefaultCleanupInterval = time.Minute

// Common errors for cache operations
var (
	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidTTL is returned when an expiration is not positive.
	ErrInvalidTTL = errors.New("ttl must be positive")
)

// FactoryError is returned by GetOrCreate when the population function fails.
// The cache is left unpopulated for Key.
type FactoryError struct {
	Key string
	Err error
}

// Error implements the error interface
func (e *FactoryError) Error() string {
	return fmt.Sprintf("populate %q: %v", e.Key, e.Err)
}

// Unwrap returns the underlying error
func (e *FactoryError) Unwrap() error {
	return e.Err
}

// Expiration describes when an entry stops being served. Every entry has
// exactly one policy: an absolute deadline fixed at insertion, or a sliding
// window pushed forward on each read.
type Expiration struct {
	TTL     time.Duration
	Sliding bool
}

// Absolute returns a fixed-deadline expiration.
func Absolute(ttl time.Duration) Expiration {
	return Expiration{TTL: ttl}
}

// Sliding returns an expiration that is extended on every access.
func Sliding(ttl time.Duration) Expiration {
	return Expiration{TTL: ttl, Sliding: true}
}

// String returns a short human readable description.
func (e Expiration) String() string {
	if e.Sliding {
		return "sliding(" + e.TTL.String() + ")"
	}
	return "absolute(" + e.TTL.String() + ")"
}

func (e Expiration) validate() error {
	if e.TTL <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTTL, e.TTL)
	}
	return nil
}

// EvictionReason says why an entry left a table.
type EvictionReason int

const (
	// ReasonExpired means the entry outlived its expiration.
	ReasonExpired EvictionReason = iota

	// ReasonRemoved means the entry was deleted explicitly.
	ReasonRemoved

	// ReasonCleared means the entry was dropped by a full clear.
	ReasonCleared
)

// String returns the string representation of the eviction reason
func (r EvictionReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonRemoved:
		return "removed"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Statistics is a point-in-time copy of a store's counters. The three
// counters are read independently, so a snapshot taken under load is not
// guaranteed to be consistent across them.
type Statistics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // Percentage: hits / (hits + misses) * 100
}

// Telemetry receives cache events. It is optional; a nil Telemetry only
// suppresses emission.
type Telemetry interface {
	TrackCacheHit(key, category string)
	TrackCacheMiss(key, category string)
	TrackCacheEviction(key, category, reason string)
}

// Listener is notified synchronously whenever an entry leaves the store,
// whether it expired or was removed. Errors and panics raised by a listener
// are logged and swallowed. Listeners run while the removal is in progress
// and must not call back into the Store.
type Listener interface {
	OnEvicted(key string, reason EvictionReason) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(key string, reason EvictionReason) error

// OnEvicted calls f(key, reason).
func (f ListenerFunc) OnEvicted(key string, reason EvictionReason) error {
	return f(key, reason)
}

// Category returns the key segment before the first ':' or "default".
func Category(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}
