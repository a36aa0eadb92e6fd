package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/lyricast/internal/archive"
	"github.com/dgnsrekt/lyricast/internal/cache"
	"github.com/dgnsrekt/lyricast/internal/config"
	"github.com/dgnsrekt/lyricast/internal/lyrics"
	"github.com/dgnsrekt/lyricast/internal/retention"
	"github.com/dgnsrekt/lyricast/internal/telemetry"
)

// recordArchive is what the commands need from either archive backend.
type recordArchive interface {
	retention.Opener
	lyrics.Archiver
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (archive.Stats, error)
	Close() error
}

// app wires the configured components together for one command run.
type app struct {
	cfg       config.Config
	archive   recordArchive
	store     *cache.Store
	telemetry *telemetry.Logger
	service   *lyrics.Service

	mu      sync.Mutex
	loggers []*log.Logger
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	arc, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	a.archive = arc

	a.telemetry = telemetry.NewLogger(a.logger("telemetry"), cfg.Cache.Telemetry)

	storeOpts := []cache.Option{
		cache.WithTable(cache.NewMemoryTable(cache.WithCleanupInterval(cfg.Cache.CleanupInterval))),
		cache.WithLogger(a.logger("cache")),
		cache.WithTelemetry(a.telemetry),
		cache.WithDefaultExpiration(cache.Sliding(cfg.Cache.DefaultTTL)),
	}
	if cfg.Cache.SingleFlight {
		storeOpts = append(storeOpts, cache.WithSingleFlight())
	}
	a.store = cache.New(storeOpts...)

	synth := lyrics.NewGTTSSynthesizer(lyrics.GTTSConfig{
		Binary:            cfg.GTTS.Binary,
		Language:          cfg.GTTS.Language,
		Slow:              cfg.GTTS.Slow,
		RequestsPerMinute: cfg.GTTS.RequestsPerMinute,
		Timeout:           cfg.GTTS.Timeout,
	}, a.logger("gtts"))

	translator := lyrics.NewTransTranslator(lyrics.TransConfig{
		Binary:            cfg.Translate.Binary,
		RequestsPerMinute: cfg.Translate.RequestsPerMinute,
		Timeout:           cfg.Translate.Timeout,
	}, a.logger("trans"))

	serviceOpts := []lyrics.Option{
		lyrics.WithTranslator(translator),
		lyrics.WithSynthesizer(synth),
		lyrics.WithArchiver(a.archive),
		lyrics.WithLogger(a.logger("lyrics")),
		lyrics.WithCollectionTTL(cfg.Lyrics.CollectionTTL),
		lyrics.WithConcurrency(cfg.Lyrics.Concurrency),
	}
	if cfg.Lyrics.SongsFile != "" {
		serviceOpts = append(serviceOpts, lyrics.WithSource(lyrics.NewFileSource(cfg.Lyrics.SongsFile)))
	}
	a.service = lyrics.NewService(a.store, serviceOpts...)
	return a, nil
}

func (a *app) openArchive(ctx context.Context) (recordArchive, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendMemory:
		return archive.NewMemoryArchive(nil), nil
	case config.BackendSQLite:
		opts := []archive.Option{
			archive.WithLogger(a.logger("archive")),
			archive.WithCompressionLevel(a.cfg.Archive.Compression),
		}
		if a.cfg.Archive.MaxPayload > 0 {
			opts = append(opts, archive.WithMaxPayloadSize(a.cfg.Archive.MaxPayload))
		}
		arc, err := archive.Open(ctx, a.cfg.Archive.Path, opts...)
		if err != nil {
			return nil, fmt.Errorf("unable to open archive: %w", err)
		}
		return arc, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
}

// sweeper builds a retention sweeper over the archive.
func (a *app) sweeper() (*retention.Sweeper, error) {
	return retention.New(a.archive, retention.Config{
		Interval:  a.cfg.Retention.Interval,
		Retention: a.cfg.Retention.Window,
		Timeout:   a.cfg.Retention.Timeout,
	}, retention.WithLogger(a.logger("retention")))
}

// logger returns a prefixed child of the default logger and remembers it so
// level changes reach every component.
func (a *app) logger(prefix string) *log.Logger {
	l := log.Default().WithPrefix(prefix)
	a.mu.Lock()
	a.loggers = append(a.loggers, l)
	a.mu.Unlock()
	return l
}

// reload applies the parts of a new configuration that can change while
// running.
func (a *app) reload(cfg config.Config) {
	lvl := cfg.LogLevel()
	log.SetLevel(lvl)

	a.mu.Lock()
	for _, l := range a.loggers {
		l.SetLevel(lvl)
	}
	a.mu.Unlock()

	a.telemetry.SetVerbose(cfg.Cache.Telemetry)
}

func (a *app) Close() error {
	for _, c := range a.telemetry.Snapshot() {
		log.Debug("Cache activity", "category", c.Category, "hits", c.Hits, "misses", c.Misses, "evictions", c.Evictions)
	}
	return errors.Join(a.store.Close(), a.archive.Close())
}
