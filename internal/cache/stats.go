package cache

import "go.uber.org/atomic"

// StatisticsCollector counts hits, misses and evictions. Each counter is
// updated atomically and independently of the others.
type StatisticsCollector struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewStatisticsCollector returns a collector with all counters at zero.
func NewStatisticsCollector() *StatisticsCollector {
	return &StatisticsCollector{}
}

func (c *StatisticsCollector) IncrementHit()      { c.hits.Inc() }
func (c *StatisticsCollector) IncrementMiss()     { c.misses.Inc() }
func (c *StatisticsCollector) IncrementEviction() { c.evictions.Inc() }

// Snapshot copies the current counters and derives the hit rate.
func (c *StatisticsCollector) Snapshot() Statistics {
	stats := Statistics{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	return stats
}
