package telemetry

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/lyricast/internal/cache"
)

func TestLogger_CountsPerCategory(t *testing.T) {
	l := NewLogger(log.New(&bytes.Buffer{}), false)

	l.TrackCacheMiss("lyrics:song:1", "lyrics")
	l.TrackCacheHit("lyrics:song:1", "lyrics")
	l.TrackCacheHit("lyrics:song:1", "lyrics")
	l.TrackCacheEviction("speech:en:a", "speech", "expired")

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, CategoryCounts{Category: "lyrics", Hits: 2, Misses: 1}, snapshot[0])
	assert.Equal(t, CategoryCounts{Category: "speech", Evictions: 1}, snapshot[1])

	summary := l.Summary()
	assert.Contains(t, summary, "lyrics")
	assert.Contains(t, summary, "hit-rate=66.7%")
}

func TestLogger_VerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)

	l := NewLogger(logger, false)
	l.TrackCacheHit("k", "default")
	assert.Empty(t, buf.String(), "quiet sink must not log")

	l.SetVerbose(true)
	l.TrackCacheEviction("k", "default", "removed")
	assert.True(t, strings.Contains(buf.String(), "Cache eviction"))
	assert.True(t, strings.Contains(buf.String(), "removed"))
}

func TestLogger_EmptySummary(t *testing.T) {
	l := NewLogger(nil, false)
	assert.Equal(t, "No cache activity recorded", l.Summary())
}

func TestLogger_ConcurrentTracking(t *testing.T) {
	l := NewLogger(log.New(&bytes.Buffer{}), false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.TrackCacheHit("k", "lyrics")
				l.TrackCacheMiss("k", "speech")
			}
		}()
	}
	wg.Wait()

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, int64(800), snapshot[0].Hits)
	assert.Equal(t, int64(800), snapshot[1].Misses)
}

func TestLogger_AsCacheTelemetry(t *testing.T) {
	l := NewLogger(log.New(&bytes.Buffer{}), false)
	store := cache.New(cache.WithTelemetry(l), cache.WithLogger(log.New(&bytes.Buffer{})))
	defer store.Close()

	ctx := context.Background()
	factory := func(context.Context) (string, error) { return "v", nil }

	_, err := cache.GetOrCreate(ctx, store, "lyrics:collection", factory)
	require.NoError(t, err)
	_, err = cache.GetOrCreate(ctx, store, "lyrics:collection", factory)
	require.NoError(t, err)
	store.RemoveByPrefix("lyrics:")

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, CategoryCounts{Category: "lyrics", Hits: 1, Misses: 1, Evictions: 1}, snapshot[0])
}
