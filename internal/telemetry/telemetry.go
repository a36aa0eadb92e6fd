// Package telemetry provides a log-backed sink for cache events with
// per-category counters.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"go.uber.org/atomic"
)

// CategoryCounts holds the event totals for one key category.
type CategoryCounts struct {
	Category  string
	Hits      int64
	Misses    int64
	Evictions int64
}

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Logger records cache events to a logger and keeps running totals per
// category. It satisfies cache.Telemetry.
type Logger struct {
	logger  *log.Logger
	enabled atomic.Bool

	mu         sync.RWMutex
	categories map[string]*counters
}

// NewLogger creates a telemetry sink. Event logging starts enabled when
// verbose is true; counters are always kept.
func NewLogger(logger *log.Logger, verbose bool) *Logger {
	if logger == nil {
		logger = log.Default().WithPrefix("telemetry")
	}
	l := &Logger{
		logger:     logger,
		categories: make(map[string]*counters),
	}
	l.enabled.Store(verbose)
	return l
}

// SetVerbose turns per-event logging on or off at runtime.
func (l *Logger) SetVerbose(v bool) {
	l.enabled.Store(v)
}

// TrackCacheHit logs a cache hit event
func (l *Logger) TrackCacheHit(key, category string) {
	l.counters(category).hits.Inc()
	if l.enabled.Load() {
		l.logger.Debug("Cache hit", "key", key, "category", category)
	}
}

// TrackCacheMiss logs a cache miss event
func (l *Logger) TrackCacheMiss(key, category string) {
	l.counters(category).misses.Inc()
	if l.enabled.Load() {
		l.logger.Debug("Cache miss", "key", key, "category", category)
	}
}

// TrackCacheEviction logs a cache eviction event
func (l *Logger) TrackCacheEviction(key, category, reason string) {
	l.counters(category).evictions.Inc()
	if l.enabled.Load() {
		l.logger.Debug("Cache eviction", "key", key, "category", category, "reason", reason)
	}
}

// Snapshot returns the totals for every category seen so far, sorted by
// category name.
func (l *Logger) Snapshot() []CategoryCounts {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]CategoryCounts, 0, len(l.categories))
	for name, c := range l.categories {
		out = append(out, CategoryCounts{
			Category:  name,
			Hits:      c.hits.Load(),
			Misses:    c.misses.Load(),
			Evictions: c.evictions.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Summary renders the totals as a short multi-line report.
func (l *Logger) Summary() string {
	snapshot := l.Snapshot()
	if len(snapshot) == 0 {
		return "No cache activity recorded"
	}

	var b strings.Builder
	b.WriteString("Cache activity:\n")
	for _, c := range snapshot {
		rate := 0.0
		if total := c.Hits + c.Misses; total > 0 {
			rate = float64(c.Hits) / float64(total) * 100
		}
		fmt.Fprintf(&b, "  %-12s hits=%d misses=%d evictions=%d hit-rate=%.1f%%\n",
			c.Category, c.Hits, c.Misses, c.Evictions, rate)
	}
	return b.String()
}

func (l *Logger) counters(category string) *counters {
	l.mu.RLock()
	c, ok := l.categories[category]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok = l.categories[category]; !ok {
		c = &counters{}
		l.categories[category] = c
	}
	return c
}
