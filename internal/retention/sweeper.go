package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultInterval  = time.Hour
	DefaultRetention = 7 * 24 * time.Hour
)

// ErrInvalidConfig is returned by New for non-positive durations.
var ErrInvalidConfig = errors.New("invalid retention config")

// Store is a scoped handle to a record store. It is valid for exactly one
// sweep and is closed when the sweep ends.
type Store interface {
	// CleanupOlderThan deletes every record older than now - retention and
	// returns how many were deleted.
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error)

	// Close releases the handle.
	Close() error
}

// Opener hands out a Store for a single sweep.
type Opener interface {
	Open(ctx context.Context) (Store, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Store, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Store, error) {
	return f(ctx)
}

// Config holds the sweeper's schedule.
type Config struct {
	// Interval is the pause between sweeps.
	Interval time.Duration

	// Retention is the age past which records are deleted.
	Retention time.Duration

	// Timeout bounds a single sweep. Zero means no bound.
	Timeout time.Duration
}

// DefaultConfig returns the default schedule.
func DefaultConfig() Config {
	return Config{
		Interval:  DefaultInterval,
		Retention: DefaultRetention,
	}
}

// Sweeper periodically purges records older than the retention window. It
// sleeps for Interval, sweeps, and repeats until its context is cancelled.
// Sweeps never overlap and a failed sweep never stops the loop.
type Sweeper struct {
	opener Opener
	config Config
	logger *log.Logger

	state   atomic.Int32
	running atomic.Bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger used by the sweeper.
func WithLogger(l *log.Logger) Option {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// New creates a sweeper for the records reachable through opener.
func New(opener Opener, config Config, opts ...Option) (*Sweeper, error) {
	if opener == nil {
		return nil, fmt.Errorf("%w: nil opener", ErrInvalidConfig)
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, config.Interval)
	}
	if config.Retention <= 0 {
		return nil, fmt.Errorf("%w: retention must be positive, got %s", ErrInvalidConfig, config.Retention)
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalidConfig, config.Timeout)
	}

	s := &Sweeper{
		opener: opener,
		config: config,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("retention")
	}

	if config.Interval > config.Retention {
		s.logger.Debug("Sweep interval exceeds retention window",
			"interval", config.Interval,
			"retention", config.Retention)
	}

	return s, nil
}

// State returns the sweeper's current state.
func (s *Sweeper) State() State {
	return State(s.state.Load())
}

func (s *Sweeper) setState(st State) {
	s.state.Store(int32(st))
}

// Run sleeps and sweeps until ctx is cancelled. Cancellation during the
// sleep returns immediately; cancellation during a sweep lets the sweep
// finish first. Run returns nil on cancellation and an error only if the
// sweeper is already running.
func (s *Sweeper) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("retention sweeper already running")
	}
	defer s.running.Store(false)

	s.logger.Info("Retention sweeper started",
		"interval", s.config.Interval,
		"retention", s.config.Retention)

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		s.setState(StateSleeping)

		select {
		case <-ctx.Done():
			s.stop()
			return nil
		case <-timer.C:
		}

		// A cancellation that raced with the timer still wins.
		if ctx.Err() != nil {
			s.stop()
			return nil
		}

		s.setState(StateSweeping)
		if _, err := s.Sweep(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Retention sweep failed",
				"error", err,
				"retry_in", s.config.Interval)
		}

		if ctx.Err() != nil {
			s.stop()
			return nil
		}
		timer.Reset(s.config.Interval)
	}
}

// Start runs the sweeper in a background goroutine. The returned function
// cancels it and blocks until it has stopped; it is safe to call more than
// once.
func (s *Sweeper) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Run(ctx); err != nil {
			s.logger.Error("Retention sweeper not started", "error", err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

// Sweep performs one cleanup against a freshly opened store handle. The
// handle is closed on every path, including a panic inside the store.
func (s *Sweeper) Sweep(ctx context.Context) (deleted int64, err error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retention sweep panicked: %v", r)
		}
	}()

	store, err := s.opener.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open record store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			s.logger.Warn("Failed to release record store", "error", closeErr)
		}
	}()

	deleted, err = store.CleanupOlderThan(ctx, s.config.Retention)
	if err != nil {
		return deleted, fmt.Errorf("cleanup older than %s: %w", s.config.Retention, err)
	}

	s.logger.Info("Retention sweep completed",
		"deleted", humanize.Comma(deleted),
		"cutoff", humanize.Time(started.Add(-s.config.Retention)),
		"duration", time.Since(started))

	return deleted, nil
}

func (s *Sweeper) stop() {
	s.setState(StateStopped)
	s.logger.Info("Retention sweeper stopped")
}
