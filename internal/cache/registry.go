package cache

import (
	"strings"
	"sync"
)

// KeyRegistry tracks the keys currently held by a table so that whole
// categories can be invalidated by prefix.
type KeyRegistry struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewKeyRegistry creates an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{keys: make(map[string]struct{})}
}

// Add registers key. No-op if already present.
func (r *KeyRegistry) Add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keys[key] = struct{}{}
}

// Remove unregisters key. No-op if absent.
func (r *KeyRegistry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.keys, key)
}

// Contains reports whether key is registered.
func (r *KeyRegistry) Contains(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.keys[key]
	return ok
}

// Len returns the number of registered keys.
func (r *KeyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.keys)
}

// AllWithPrefix returns a snapshot of the keys starting with prefix. An empty
// prefix matches every key. The result is safe to range over while the
// registry keeps changing.
func (r *KeyRegistry) AllWithPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.keys))
	for key := range r.keys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear drops every key.
func (r *KeyRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keys = make(map[string]struct{})
}
