// Package config resolves lyricast settings from the config file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/lyricast/internal/cache"
	"github.com/dgnsrekt/lyricast/internal/retention"
)

// AppName names the config, cache and data directories.
const AppName = "lyricast"

// Archive backends
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config contains all lyricast configuration options.
type Config struct {
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Lyrics    LyricsConfig    `yaml:"lyrics"`
	GTTS      GTTSConfig      `yaml:"gtts"`
	Translate TranslateConfig `yaml:"translate"`
	Log       LogConfig       `yaml:"log"`
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	DefaultTTL      time.Duration `yaml:"default_ttl" env:"LYRICAST_CACHE_DEFAULT_TTL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"LYRICAST_CACHE_CLEANUP_INTERVAL"`
	SingleFlight    bool          `yaml:"single_flight" env:"LYRICAST_CACHE_SINGLE_FLIGHT"`
	Telemetry       bool          `yaml:"telemetry" env:"LYRICAST_CACHE_TELEMETRY"`
}

// RetentionConfig controls the archive sweeper.
type RetentionConfig struct {
	Interval time.Duration `yaml:"interval" env:"LYRICAST_RETENTION_INTERVAL"`
	Window   time.Duration `yaml:"window" env:"LYRICAST_RETENTION_WINDOW"`
	Timeout  time.Duration `yaml:"timeout" env:"LYRICAST_RETENTION_TIMEOUT"`
}

// ArchiveConfig selects and tunes the record archive.
type ArchiveConfig struct {
	Backend     string `yaml:"backend" env:"LYRICAST_ARCHIVE_BACKEND"`
	Path        string `yaml:"path" env:"LYRICAST_ARCHIVE_PATH"`
	Compression int    `yaml:"compression" env:"LYRICAST_ARCHIVE_COMPRESSION"`
	MaxPayload  uint64 `yaml:"max_payload" env:"LYRICAST_ARCHIVE_MAX_PAYLOAD"`
}

// LyricsConfig tunes the lyrics service.
type LyricsConfig struct {
	CollectionTTL time.Duration `yaml:"collection_ttl" env:"LYRICAST_LYRICS_COLLECTION_TTL"`
	Concurrency   int           `yaml:"concurrency" env:"LYRICAST_LYRICS_CONCURRENCY"`
	SongsFile     string        `yaml:"songs_file" env:"LYRICAST_LYRICS_SONGS_FILE"`
}

// GTTSConfig contains gTTS synthesizer settings.
type GTTSConfig struct {
	Binary            string        `yaml:"binary" env:"LYRICAST_GTTS_BINARY"`
	Language          string        `yaml:"language" env:"LYRICAST_GTTS_LANGUAGE"`
	Slow              bool          `yaml:"slow" env:"LYRICAST_GTTS_SLOW"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"LYRICAST_GTTS_REQUESTS_PER_MINUTE"`
	Timeout           time.Duration `yaml:"timeout" env:"LYRICAST_GTTS_TIMEOUT"`
}

// TranslateConfig contains translate-shell settings.
type TranslateConfig struct {
	Binary            string        `yaml:"binary" env:"LYRICAST_TRANSLATE_BINARY"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"LYRICAST_TRANSLATE_REQUESTS_PER_MINUTE"`
	Timeout           time.Duration `yaml:"timeout" env:"LYRICAST_TRANSLATE_TIMEOUT"`
}

// LogConfig controls the log output.
type LogConfig struct {
	Level string `yaml:"level" env:"LYRICAST_LOG_LEVEL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			DefaultTTL:      cache.DefaultRetention,
			CleanupInterval: cache.DefaultCleanupInterval,
		},
		Retention: RetentionConfig{
			Interval: retention.DefaultInterval,
			Window:   retention.DefaultRetention,
		},
		Archive: ArchiveConfig{
			Backend:     BackendSQLite,
			Compression: 3,
		},
		Lyrics: LyricsConfig{
			CollectionTTL: 5 * time.Minute,
			Concurrency:   4,
		},
		GTTS: GTTSConfig{
			Binary:            "gtts-cli",
			Language:          "en",
			RequestsPerMinute: 50,
			Timeout:           30 * time.Second,
		},
		Translate: TranslateConfig{
			Binary:            "trans",
			RequestsPerMinute: 60,
			Timeout:           30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultArchivePath returns the archive location under the user data
// directory.
func DefaultArchivePath() (string, error) {
	p, err := gap.NewScope(gap.User, AppName).DataPath("archive.db")
	if err != nil {
		return "", fmt.Errorf("unable to resolve data directory: %w", err)
	}
	return p, nil
}

// ApplyEnv overlays LYRICAST_* environment variables onto c. Variables that
// are not set leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid and normalizes paths and
// names in place.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"cache.default_ttl", c.Cache.DefaultTTL},
		{"retention.interval", c.Retention.Interval},
		{"retention.window", c.Retention.Window},
		{"lyrics.collection_ttl", c.Lyrics.CollectionTTL},
	}
	for _, v := range durations {
		if v.d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, v.name, v.d)
		}
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("%w: cache.cleanup_interval must not be negative", ErrInvalid)
	}
	if c.Retention.Timeout < 0 {
		return fmt.Errorf("%w: retention.timeout must not be negative", ErrInvalid)
	}

	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	switch c.Archive.Backend {
	case BackendSQLite:
		if c.Archive.Path == "" {
			p, err := DefaultArchivePath()
			if err != nil {
				return err
			}
			c.Archive.Path = p
		}
		p, err := ExpandPath(c.Archive.Path)
		if err != nil {
			return fmt.Errorf("%w: archive.path: %v", ErrInvalid, err)
		}
		c.Archive.Path = p
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown archive backend %q: must be one of %v",
			ErrInvalid, c.Archive.Backend, []string{BackendSQLite, BackendMemory})
	}
	if c.Archive.Compression < 0 || c.Archive.Compression > 22 {
		return fmt.Errorf("%w: archive.compression must be between 0 and 22, got %d", ErrInvalid, c.Archive.Compression)
	}

	if c.Lyrics.Concurrency < 1 {
		return fmt.Errorf("%w: lyrics.concurrency must be at least 1, got %d", ErrInvalid, c.Lyrics.Concurrency)
	}
	if c.Lyrics.SongsFile != "" {
		p, err := ExpandPath(c.Lyrics.SongsFile)
		if err != nil {
			return fmt.Errorf("%w: lyrics.songs_file: %v", ErrInvalid, err)
		}
		c.Lyrics.SongsFile = p
	}

	tag, err := language.Parse(c.GTTS.Language)
	if err != nil {
		return fmt.Errorf("%w: gtts.language %q: %v", ErrInvalid, c.GTTS.Language, err)
	}
	c.GTTS.Language = tag.String()
	if c.GTTS.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: gtts.requests_per_minute must be at least 1, got %d", ErrInvalid, c.GTTS.RequestsPerMinute)
	}

	if c.Translate.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: translate.requests_per_minute must be at least 1, got %d", ErrInvalid, c.Translate.RequestsPerMinute)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return nil
}

// LogLevel returns the parsed log level, falling back to info.
func (c Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// ExpandPath expands environment variables and a leading ~ in p.
func ExpandPath(p string) (string, error) {
	p, err := homedir.Expand(os.ExpandEnv(p))
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Clean(p), nil
}
