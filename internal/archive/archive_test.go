package archive_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/lyricast/internal/archive"
	"github.com/dgnsrekt/lyricast/internal/retention"
)

// recordStore is the contract shared by both archive implementations.
type recordStore interface {
	retention.Opener
	Append(ctx context.Context, r archive.Record) (int64, error)
	Get(ctx context.Context, id int64) (*archive.Record, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (archive.Stats, error)
	Close() error
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func openSQLite(t *testing.T, opts ...archive.Option) *archive.Archive {
	t.Helper()
	opts = append([]archive.Option{archive.WithLogger(quietLogger())}, opts...)
	a, err := archive.Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func stores(t *testing.T) map[string]recordStore {
	return map[string]recordStore{
		"sqlite": openSQLite(t),
		"memory": archive.NewMemoryArchive(nil),
	}
}

func TestArchive_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := store.Append(ctx, archive.Record{
				Kind:     archive.KindTranslation,
				Key:      "lyrics:song:42:translation:es",
				Language: "es",
				Text:     "hello",
				Payload:  []byte("hola"),
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, got.ID)
			assert.Equal(t, archive.KindTranslation, got.Kind)
			assert.Equal(t, "lyrics:song:42:translation:es", got.Key)
			assert.Equal(t, "es", got.Language)
			assert.Equal(t, "hello", got.Text)
			assert.Equal(t, []byte("hola"), got.Payload)
			assert.False(t, got.CreatedAt.IsZero())

			_, err = store.Get(ctx, id+1000)
			assert.ErrorIs(t, err, archive.ErrNotFound)
		})
	}
}

func TestArchive_CompressesLargePayloads(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)

	audio := bytes.Repeat([]byte("silence "), 4096)
	id, err := a.Append(ctx, archive.Record{Kind: archive.KindSpeech, Key: "speech:en:abc", Payload: audio})
	require.NoError(t, err)

	got, err := a.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, audio, got.Payload)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(audio)), stats.Bytes, "stats report uncompressed size")
}

func TestArchive_CompressionDisabled(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t, archive.WithCompressionLevel(0))

	audio := bytes.Repeat([]byte{0x01}, 8192)
	id, err := a.Append(ctx, archive.Record{Kind: archive.KindSpeech, Key: "k", Payload: audio})
	require.NoError(t, err)

	got, err := a.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, audio, got.Payload)
}

func TestArchive_SessionCleansRecordsPastRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, age := range []time.Duration{30 * time.Hour, 10 * time.Hour, time.Hour} {
				_, err := store.Append(ctx, archive.Record{
					Kind:      archive.KindSpeech,
					Key:       "speech:en:" + age.String(),
					CreatedAt: now.Add(-age),
				})
				require.NoError(t, err)
			}

			sweeper, err := retention.New(store, retention.Config{
				Interval:  time.Hour,
				Retention: 24 * time.Hour,
			}, retention.WithLogger(quietLogger()))
			require.NoError(t, err)

			deleted, err := sweeper.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.WithinDuration(t, now.Add(-10*time.Hour), stats.Oldest, time.Second)
		})
	}
}

func TestArchive_SessionReleasesConnection(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)

	// More sessions than pooled connections: each must be returned.
	for i := 0; i < 10; i++ {
		s, err := a.Open(ctx)
		require.NoError(t, err)
		_, err = s.CleanupOlderThan(ctx, time.Hour)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	_, err := a.Count(ctx)
	require.NoError(t, err)
}

func TestArchive_StatsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Records)
			assert.True(t, stats.Oldest.IsZero())
		})
	}
}

func TestArchive_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "archive.db")

	a, err := archive.Open(ctx, path, archive.WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = a.Append(ctx, archive.Record{Kind: archive.KindSpeech, Key: "k"})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = archive.Open(ctx, path, archive.WithLogger(quietLogger()))
	require.NoError(t, err)
	defer a.Close()

	count, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := archive.Open(context.Background(), "")
	assert.Error(t, err)
}

func TestArchive_GetReturnsACopy(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, err := store.Append(ctx, archive.Record{Kind: archive.KindSpeech, Key: "speech:en:abc", Payload: []byte("mp3")})
			require.NoError(t, err)

			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			got.Payload[0] = 'X'

			again, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []byte("mp3"), again.Payload)
		})
	}
}

func TestArchive_MaxPayloadSize(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t, archive.WithMaxPayloadSize(1024))

	audio := bytes.Repeat([]byte("silence "), 4096)
	id, err := a.Append(ctx, archive.Record{Kind: archive.KindSpeech, Key: "speech:en:big", Payload: audio})
	require.NoError(t, err)

	_, err = a.Get(ctx, id)
	assert.ErrorIs(t, err, archive.ErrCorrupted)
}

func TestArchive_OpenFailureReleasesResources(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")

	_, err := archive.Open(ctx, path, archive.WithLogger(quietLogger()), archive.WithMaxPayloadSize(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd decoder")

	a, err := archive.Open(ctx, path, archive.WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
