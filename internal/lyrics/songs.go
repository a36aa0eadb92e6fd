package lyrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// songsFile is the on-disk layout read by FileSource:
//
//	songs:
//	  - id: cream
//	    title: C.R.E.A.M.
//	    artist: Wu-Tang Clan
type songsFile struct {
	Songs []Song `yaml:"songs"`
}

// FileSource reads the published collection from a YAML file. The file is
// read again on every call.
type FileSource struct {
	path string
}

// NewFileSource creates a Source backed by the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads.
func (f *FileSource) Path() string {
	return f.path
}

// Songs reads and validates the collection.
func (f *FileSource) Songs(ctx context.Context) ([]Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read songs file: %w", err)
	}

	var file songsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse songs file %s: %w", f.path, err)
	}

	seen := make(map[string]bool, len(file.Songs))
	for i, song := range file.Songs {
		id := strings.TrimSpace(song.ID)
		if id == "" {
			return nil, fmt.Errorf("songs file %s: entry %d: %w", f.path, i+1, errors.New("missing id"))
		}
		if seen[id] {
			return nil, fmt.Errorf("songs file %s: duplicate id %q", f.path, id)
		}
		seen[id] = true
		file.Songs[i].ID = id
	}
	return file.Songs, nil
}

// ChangedSongs returns the ids of songs in prev that are missing from next
// or whose details differ.
func ChangedSongs(prev, next []Song) []string {
	current := make(map[string]Song, len(next))
	for _, s := range next {
		current[s.ID] = s
	}

	var changed []string
	for _, s := range prev {
		if n, ok := current[s.ID]; !ok || n != s {
			changed = append(changed, s.ID)
		}
	}
	return changed
}

var _ Source = (*FileSource)(nil)
