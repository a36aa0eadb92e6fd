package lyrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSongs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "songs.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFileSource_Songs(t *testing.T) {
	path := writeSongs(t, `
songs:
  - id: cream
    title: C.R.E.A.M.
    artist: Wu-Tang Clan
  - id: " neck "
    title: Protect Ya Neck
    artist: Wu-Tang Clan
`)

	songs, err := NewFileSource(path).Songs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Song{
		{ID: "cream", Title: "C.R.E.A.M.", Artist: "Wu-Tang Clan"},
		{ID: "neck", Title: "Protect Ya Neck", Artist: "Wu-Tang Clan"},
	}, songs)
}

func TestFileSource_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing id", "songs:\n  - title: Untitled\n", "missing id"},
		{"duplicate id", "songs:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"bad yaml", "songs: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(writeSongs(t, tt.body)).Songs(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.yml")).Songs(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestChangedSongs(t *testing.T) {
	prev := []Song{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}
	next := []Song{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B (remix)"},
		{ID: "d", Title: "D"},
	}

	assert.Equal(t, []string{"b", "c"}, ChangedSongs(prev, next))
	assert.Empty(t, ChangedSongs(prev, prev))
	assert.Empty(t, ChangedSongs(nil, next))
}
