package cache

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Observer is told about every key entering or leaving a table. Calls are
// made while the table lock is held, so an observer sees mutations in the
// exact order they happen. Observers must not call back into the table.
type Observer interface {
	Inserted(key string)
	Evicted(key string, reason EvictionReason)
}

// Table is the keyed value store a Store is built on.
type Table interface {
	// Set stores value under key, replacing any previous entry.
	Set(key string, value any, exp Expiration)

	// Get returns a live value. Reading a sliding entry extends its deadline.
	Get(key string) (any, bool)

	// Has reports whether a live entry exists without touching it.
	Has(key string) bool

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// Clear removes every entry and returns how many were dropped.
	Clear() int

	// Len returns the number of stored entries, expired or not.
	Len() int

	// Observe registers o for insert and eviction notifications.
	Observe(o Observer)

	// Close releases background resources.
	Close() error
}

// MemoryTable is an in-process Table. Expired entries are dropped lazily on
// read and periodically by a janitor goroutine.
type MemoryTable struct {
	items     map[string]*tableEntry
	observers []Observer

	// Time source
	now func() time.Time

	// Cleanup goroutine control
	cleanupInterval time.Duration
	cleanupStop     chan struct{}
	cleanupWg       sync.WaitGroup
	closeOnce       sync.Once

	// Synchronization
	mu sync.RWMutex
}

// tableEntry represents an entry in the memory table
type tableEntry struct {
	key       string
	value     any
	exp       Expiration
	createdAt time.Time

	// Deadline in unix nanoseconds. Sliding hits move it under the read lock.
	expiresAt atomic.Int64
}

func (e *tableEntry) live(now time.Time) bool {
	return now.UnixNano() < e.expiresAt.Load()
}

// touch moves a sliding deadline forward. Concurrent readers never pull it
// back.
func (e *tableEntry) touch(now time.Time) {
	next := now.Add(e.exp.TTL).UnixNano()
	for {
		cur := e.expiresAt.Load()
		if next <= cur || e.expiresAt.CompareAndSwap(cur, next) {
			return
		}
	}
}

// TableOption configures a MemoryTable.
type TableOption func(*MemoryTable)

// WithClock replaces time.Now as the table's time source.
func WithClock(now func() time.Time) TableOption {
	return func(t *MemoryTable) {
		t.now = now
	}
}

// WithCleanupInterval sets how often expired entries are purged in the
// background. Zero or a negative interval disables the janitor.
func WithCleanupInterval(interval time.Duration) TableOption {
	return func(t *MemoryTable) {
		t.cleanupInterval = interval
	}
}

// NewMemoryTable creates a table and starts its janitor.
func NewMemoryTable(opts ...TableOption) *MemoryTable {
	t := &MemoryTable{
		items:           make(map[string]*tableEntry),
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		cleanupStop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.cleanupInterval > 0 {
		t.startCleanupRoutine()
	}

	return t
}

// Set stores a value in the table.
func (t *MemoryTable) Set(key string, value any, exp Expiration) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Replacing keeps the key registered; only the payload and deadline move.
	if existing, ok := t.items[key]; ok {
		existing.value = value
		existing.exp = exp
		existing.createdAt = now
		existing.expiresAt.Store(now.Add(exp.TTL).UnixNano())
		return
	}

	entry := &tableEntry{
		key:       key,
		value:     value,
		exp:       exp,
		createdAt: now,
	}
	entry.expiresAt.Store(now.Add(exp.TTL).UnixNano())
	t.items[key] = entry
	for _, o := range t.observers {
		o.Inserted(key)
	}
}

// Get retrieves a live value from the table.
func (t *MemoryTable) Get(key string) (any, bool) {
	now := t.now()

	// Live entries are served under the read lock; only an expired entry
	// needs the write lock to be dropped.
	t.mu.RLock()
	entry, ok := t.items[key]
	if !ok {
		t.mu.RUnlock()
		return nil, false
	}
	if entry.live(now) {
		if entry.exp.Sliding {
			entry.touch(now)
		}
		value := entry.value
		t.mu.RUnlock()
		return value, true
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok = t.items[key]
	if !ok {
		return nil, false
	}
	if !entry.live(now) {
		t.evict(entry, ReasonExpired)
		return nil, false
	}
	if entry.exp.Sliding {
		entry.touch(now)
	}
	return entry.value, true
}

// Has checks if a live entry exists without extending it.
func (t *MemoryTable) Has(key string) bool {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.items[key]
	return ok && entry.live(now)
}

// Delete removes an entry from the table.
func (t *MemoryTable) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[key]
	if !ok {
		return false
	}

	t.evict(entry, ReasonRemoved)
	return true
}

// Clear removes all entries from the table.
func (t *MemoryTable) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared := 0
	for _, entry := range t.items {
		t.evict(entry, ReasonCleared)
		cleared++
	}
	return cleared
}

// Len returns the number of stored entries.
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.items)
}

// Observe registers an observer.
func (t *MemoryTable) Observe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observers = append(t.observers, o)
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (t *MemoryTable) PurgeExpired() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	purged := 0
	for _, entry := range t.items {
		if !entry.live(now) {
			t.evict(entry, ReasonExpired)
			purged++
		}
	}
	return purged
}

// Close stops the janitor. It is safe to call more than once.
func (t *MemoryTable) Close() error {
	t.closeOnce.Do(func() {
		close(t.cleanupStop)
		t.cleanupWg.Wait()
	})
	return nil
}

// evict removes an entry and notifies observers (must be called with lock held).
func (t *MemoryTable) evict(entry *tableEntry, reason EvictionReason) {
	delete(t.items, entry.key)
	for _, o := range t.observers {
		o.Evicted(entry.key, reason)
	}
}

// startCleanupRoutine starts the background cleanup goroutine.
func (t *MemoryTable) startCleanupRoutine() {
	ticker := time.NewTicker(t.cleanupInterval)
	t.cleanupWg.Add(1)

	go func() {
		defer t.cleanupWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.PurgeExpired()
			case <-t.cleanupStop:
				return
			}
		}
	}()
}

var _ Table = (*MemoryTable)(nil)
