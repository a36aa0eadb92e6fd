package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Store is a get-or-create cache over a Table. Keys are registered on
// insertion so whole categories can be invalidated by prefix, and every
// access is counted.
//
// Concurrent misses for the same key are not coalesced unless the store is
// built WithSingleFlight: each caller that observes the miss runs its own
// factory and the last write wins. Callers with expensive or non-idempotent
// factories should opt in or coalesce themselves.
type Store struct {
	table     Table
	registry  *KeyRegistry
	stats     *StatisticsCollector
	telemetry Telemetry
	listeners []Listener
	logger    *log.Logger

	defaultExpiration Expiration
	flight            *singleflight.Group

	closed atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the underlying table. A MemoryTable is used by default.
func WithTable(t Table) Option {
	return func(s *Store) {
		s.table = t
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithTelemetry sets the telemetry sink. Nil disables emission.
func WithTelemetry(t Telemetry) Option {
	return func(s *Store) {
		s.telemetry = t
	}
}

// WithListener registers an eviction listener.
func WithListener(l Listener) Option {
	return func(s *Store) {
		s.listeners = append(s.listeners, l)
	}
}

// WithDefaultExpiration sets the policy applied when GetOrCreate is called
// without an expiration option.
func WithDefaultExpiration(exp Expiration) Option {
	return func(s *Store) {
		s.defaultExpiration = exp
	}
}

// WithSingleFlight coalesces concurrent misses for the same key so that only
// one factory runs and every waiting caller shares its result.
func WithSingleFlight() Option {
	return func(s *Store) {
		s.flight = &singleflight.Group{}
	}
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{
		registry:          NewKeyRegistry(),
		stats:             NewStatisticsCollector(),
		defaultExpiration: Sliding(DefaultRetention),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.table == nil {
		s.table = NewMemoryTable()
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("cache")
	}

	s.table.Observe(bookkeeper{s})
	return s
}

// EntryOption sets the expiration of a single entry.
type EntryOption func(*Expiration)

// WithTTL gives the entry an absolute deadline ttl after insertion.
func WithTTL(ttl time.Duration) EntryOption {
	return func(e *Expiration) {
		*e = Absolute(ttl)
	}
}

// WithSlidingTTL expires the entry after ttl without access.
func WithSlidingTTL(ttl time.Duration) EntryOption {
	return func(e *Expiration) {
		*e = Sliding(ttl)
	}
}

// GetOrCreate returns the live value cached under key, or calls factory,
// caches its result and returns it. A factory error is returned as a
// *FactoryError and nothing is cached.
func GetOrCreate[T any](ctx context.Context, s *Store, key string, factory func(context.Context) (T, error), opts ...EntryOption) (T, error) {
	var zero T
	if s.closed.Load() {
		return zero, ErrClosed
	}

	exp := s.defaultExpiration
	for _, opt := range opts {
		opt(&exp)
	}
	if err := exp.validate(); err != nil {
		return zero, err
	}

	if v, ok := s.table.Get(key); ok {
		if value, ok := v.(T); ok {
			s.recordHit(key)
			return value, nil
		}
		s.logger.Debug("Cached value has unexpected type", "key", key, "type", fmt.Sprintf("%T", v))
	}
	s.recordMiss(key)

	if s.flight != nil {
		v, err, shared := s.flight.Do(key, func() (any, error) {
			return s.populate(ctx, key, exp, func(ctx context.Context) (any, error) {
				return factory(ctx)
			})
		})
		if err != nil {
			return zero, err
		}
		if shared {
			s.logger.Debug("Cache population shared", "key", key)
		}
		if value, ok := v.(T); ok {
			return value, nil
		}
		// A caller of another type produced the shared value.
		s.logger.Debug("Shared value has unexpected type", "key", key, "type", fmt.Sprintf("%T", v))
	}

	v, err := s.populate(ctx, key, exp, func(ctx context.Context) (any, error) {
		return factory(ctx)
	})
	if err != nil {
		return zero, err
	}
	value, _ := v.(T)
	return value, nil
}

// populate runs factory and stores its result.
func (s *Store) populate(ctx context.Context, key string, exp Expiration, factory func(context.Context) (any, error)) (any, error) {
	value, err := factory(ctx)
	if err != nil {
		s.logger.Debug("Cache factory failed", "key", key, "error", err)
		return nil, &FactoryError{Key: key, Err: err}
	}

	s.table.Set(key, value, exp)
	s.logger.Info("Cache entry populated", "key", key, "expiration", exp)
	return value, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(key string) {
	if s.table.Delete(key) {
		s.logger.Info("Cache entry removed", "key", key)
	}
}

// RemoveByPrefix removes every key starting with prefix and returns how many
// entries were dropped.
func (s *Store) RemoveByPrefix(prefix string) int {
	removed := 0
	for _, key := range s.registry.AllWithPrefix(prefix) {
		if s.table.Delete(key) {
			removed++
		}
	}

	s.logger.Info("Cache entries removed by prefix", "prefix", prefix, "count", removed)
	return removed
}

// Clear removes every entry.
func (s *Store) Clear() {
	cleared := s.table.Clear()
	s.logger.Warn("Cache cleared", "count", cleared)
}

// Contains reports whether a live entry exists for key. It does not count as
// an access and does not extend sliding entries.
func (s *Store) Contains(key string) bool {
	return s.table.Has(key)
}

// Len returns the number of registered keys.
func (s *Store) Len() int {
	return s.registry.Len()
}

// GetStatistics returns a snapshot of the hit, miss and eviction counters.
func (s *Store) GetStatistics() Statistics {
	return s.stats.Snapshot()
}

// Close releases the underlying table. Further GetOrCreate calls fail with
// ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.table.Close()
}

func (s *Store) recordHit(key string) {
	s.stats.IncrementHit()
	s.logger.Debug("Cache hit", "key", key)
	if s.telemetry != nil {
		s.telemetry.TrackCacheHit(key, Category(key))
	}
}

func (s *Store) recordMiss(key string) {
	s.stats.IncrementMiss()
	s.logger.Debug("Cache miss", "key", key)
	if s.telemetry != nil {
		s.telemetry.TrackCacheMiss(key, Category(key))
	}
}

// safely runs fn, logging any error or panic instead of propagating it.
func (s *Store) safely(what, key string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Eviction callback panicked", "step", what, "key", key, "panic", r)
		}
	}()

	if err := fn(); err != nil {
		s.logger.Error("Eviction callback failed", "step", what, "key", key, "error", err)
	}
}

// bookkeeper keeps the registry and counters in step with the table.
type bookkeeper struct {
	s *Store
}

func (b bookkeeper) Inserted(key string) {
	b.s.registry.Add(key)
}

func (b bookkeeper) Evicted(key string, reason EvictionReason) {
	s := b.s
	s.registry.Remove(key)

	if reason == ReasonExpired {
		s.stats.IncrementEviction()
		s.logger.Debug("Cache entry expired", "key", key)
	}

	if s.telemetry != nil {
		s.safely("telemetry", key, func() error {
			s.telemetry.TrackCacheEviction(key, Category(key), reason.String())
			return nil
		})
	}

	for _, l := range s.listeners {
		s.safely("listener", key, func() error {
			return l.OnEvicted(key, reason)
		})
	}
}

// Typed binds a Store to a single value type.
type Typed[T any] struct {
	store *Store
}

// NewTyped returns a typed view of s.
func NewTyped[T any](s *Store) *Typed[T] {
	return &Typed[T]{store: s}
}

// GetOrCreate is GetOrCreate for the view's type.
func (t *Typed[T]) GetOrCreate(ctx context.Context, key string, factory func(context.Context) (T, error), opts ...EntryOption) (T, error) {
	return GetOrCreate(ctx, t.store, key, factory, opts...)
}

// Store returns the underlying store.
func (t *Typed[T]) Store() *Store {
	return t.store
}
