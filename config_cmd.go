package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# In-memory result cache
cache:
  # how long an unused result is kept
  default_ttl: 30m
  # how often expired results are purged (0 disables the purge)
  cleanup_interval: 1m
  # share one population between concurrent misses of the same key
  single_flight: false
  # log every hit, miss and eviction at debug level
  telemetry: false

# Archive retention
retention:
  # time between sweeps
  interval: 1h
  # records older than this are deleted
  window: 168h
  # upper bound for a single sweep (0 means no limit)
  timeout: 0s

# Synthesized clip archive
archive:
  # sqlite or memory
  backend: "sqlite"
  # database path (defaults to the user data directory)
  # path: "~/.local/share/lyricast/archive.db"
  # zstd level for large payloads (0 disables compression)
  compression: 3
  # refuse to read back payloads larger than this (0 means no limit)
  max_payload: 0

lyrics:
  # the collection snapshot is rebuilt this long after it was read from the source
  collection_ttl: 5m
  # parallel syntheses when speaking several lines
  concurrency: 4
  # YAML list of published songs, used by "lyricast songs"
  # songs_file: "~/music/songs.yml"

# Google Translate TTS
gtts:
  binary: "gtts-cli"
  language: "en"
  slow: false
  requests_per_minute: 50
  timeout: 30s

# translate-shell
translate:
  binary: "trans"
  requests_per_minute: 60
  timeout: 30s

log:
  # debug, info, warn or error
  level: "info"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the lyricast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lyricast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lyricast config\nlyricast config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// Skip validation so a broken file can still be opened.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("lyricast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
