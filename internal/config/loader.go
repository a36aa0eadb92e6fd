package config

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SetDefaults registers the default values with v so that they show up in
// v.AllSettings and in flag help.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("cache.single_flight", d.Cache.SingleFlight)
	v.SetDefault("cache.telemetry", d.Cache.Telemetry)

	v.SetDefault("retention.interval", d.Retention.Interval)
	v.SetDefault("retention.window", d.Retention.Window)
	v.SetDefault("retention.timeout", d.Retention.Timeout)

	v.SetDefault("archive.backend", d.Archive.Backend)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.compression", d.Archive.Compression)
	v.SetDefault("archive.max_payload", d.Archive.MaxPayload)

	v.SetDefault("lyrics.collection_ttl", d.Lyrics.CollectionTTL)
	v.SetDefault("lyrics.concurrency", d.Lyrics.Concurrency)
	v.SetDefault("lyrics.songs_file", d.Lyrics.SongsFile)

	v.SetDefault("gtts.binary", d.GTTS.Binary)
	v.SetDefault("gtts.language", d.GTTS.Language)
	v.SetDefault("gtts.slow", d.GTTS.Slow)
	v.SetDefault("gtts.requests_per_minute", d.GTTS.RequestsPerMinute)
	v.SetDefault("gtts.timeout", d.GTTS.Timeout)

	v.SetDefault("translate.binary", d.Translate.Binary)
	v.SetDefault("translate.requests_per_minute", d.Translate.RequestsPerMinute)
	v.SetDefault("translate.timeout", d.Translate.Timeout)

	v.SetDefault("log.level", d.Log.Level)
}

// Load builds a Config from v, overlays the environment and validates the
// result.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	// Cache settings
	if v.IsSet("cache.default_ttl") {
		cfg.Cache.DefaultTTL = v.GetDuration("cache.default_ttl")
	}
	if v.IsSet("cache.cleanup_interval") {
		cfg.Cache.CleanupInterval = v.GetDuration("cache.cleanup_interval")
	}
	if v.IsSet("cache.single_flight") {
		cfg.Cache.SingleFlight = v.GetBool("cache.single_flight")
	}
	if v.IsSet("cache.telemetry") {
		cfg.Cache.Telemetry = v.GetBool("cache.telemetry")
	}

	// Retention settings
	if v.IsSet("retention.interval") {
		cfg.Retention.Interval = v.GetDuration("retention.interval")
	}
	if v.IsSet("retention.window") {
		cfg.Retention.Window = v.GetDuration("retention.window")
	}
	if v.IsSet("retention.timeout") {
		cfg.Retention.Timeout = v.GetDuration("retention.timeout")
	}

	// Archive settings
	if v.IsSet("archive.backend") {
		cfg.Archive.Backend = v.GetString("archive.backend")
	}
	if v.IsSet("archive.path") {
		cfg.Archive.Path = v.GetString("archive.path")
	}
	if v.IsSet("archive.compression") {
		cfg.Archive.Compression = v.GetInt("archive.compression")
	}
	if v.IsSet("archive.max_payload") {
		cfg.Archive.MaxPayload = uint64(v.GetSizeInBytes("archive.max_payload"))
	}

	// Lyrics settings
	if v.IsSet("lyrics.collection_ttl") {
		cfg.Lyrics.CollectionTTL = v.GetDuration("lyrics.collection_ttl")
	}
	if v.IsSet("lyrics.concurrency") {
		cfg.Lyrics.Concurrency = v.GetInt("lyrics.concurrency")
	}
	if v.IsSet("lyrics.songs_file") {
		cfg.Lyrics.SongsFile = v.GetString("lyrics.songs_file")
	}

	// gTTS settings
	if v.IsSet("gtts.binary") {
		cfg.GTTS.Binary = v.GetString("gtts.binary")
	}
	if v.IsSet("gtts.language") {
		cfg.GTTS.Language = v.GetString("gtts.language")
	}
	if v.IsSet("gtts.slow") {
		cfg.GTTS.Slow = v.GetBool("gtts.slow")
	}
	if v.IsSet("gtts.requests_per_minute") {
		cfg.GTTS.RequestsPerMinute = v.GetInt("gtts.requests_per_minute")
	}
	if v.IsSet("gtts.timeout") {
		cfg.GTTS.Timeout = v.GetDuration("gtts.timeout")
	}

	// translate-shell settings
	if v.IsSet("translate.binary") {
		cfg.Translate.Binary = v.GetString("translate.binary")
	}
	if v.IsSet("translate.requests_per_minute") {
		cfg.Translate.RequestsPerMinute = v.GetInt("translate.requests_per_minute")
	}
	if v.IsSet("translate.timeout") {
		cfg.Translate.Timeout = v.GetDuration("translate.timeout")
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid lyricast configuration: %w", err)
	}
	return cfg, nil
}

// Watch reloads the configuration whenever the file backing v changes and
// hands every valid result to onChange. Invalid edits are logged and
// ignored.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "err", err)
			return
		}
		log.Info("Configuration reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
