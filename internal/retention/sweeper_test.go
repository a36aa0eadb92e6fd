package retention

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory record store. Every Open hands out a handle
// that shares the records and counts its own release.
type memStore struct {
	mu      sync.Mutex
	records []time.Time
	opens   int
	closes  int
	sweeps  int

	// cleanup, when set, replaces the default behavior for a sweep number
	// (1-based).
	cleanup func(ctx context.Context, sweep int) error
}

func (m *memStore) Open(context.Context) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return &memHandle{store: m}, nil
}

func (m *memStore) counts() (opens, closes, sweeps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes, m.sweeps
}

func (m *memStore) remaining() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.records...)
}

type memHandle struct {
	store *memStore
}

func (h *memHandle) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	m := h.store
	m.mu.Lock()
	m.sweeps++
	sweep := m.sweeps
	hook := m.cleanup
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, sweep); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	kept := m.records[:0]
	var deleted int64
	for _, ts := range m.records {
		if ts.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ts)
	}
	m.records = kept
	return deleted, nil
}

func (h *memHandle) Close() error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.closes++
	return nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestSweeper(t *testing.T, opener Opener, cfg Config) *Sweeper {
	t.Helper()
	s, err := New(opener, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	return s
}

func TestSweep_DeletesOnlyRecordsPastRetention(t *testing.T) {
	now := time.Now()
	store := &memStore{records: []time.Time{
		now.Add(-30 * time.Hour),
		now.Add(-10 * time.Hour),
		now.Add(-1 * time.Hour),
	}}

	s := newTestSweeper(t, store, Config{Interval: time.Hour, Retention: 24 * time.Hour})

	deleted, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining := store.remaining()
	require.Len(t, remaining, 2)
	assert.True(t, remaining[0].Equal(now.Add(-10*time.Hour)))
	assert.True(t, remaining[1].Equal(now.Add(-1*time.Hour)))

	opens, closes, _ := store.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes, "handle must be released after the sweep")
}

func TestRun_SurvivesFailedCycle(t *testing.T) {
	store := &memStore{
		cleanup: func(_ context.Context, sweep int) error {
			if sweep == 1 {
				return errors.New("store unavailable")
			}
			return nil
		},
	}
	s := newTestSweeper(t, store, Config{Interval: 10 * time.Millisecond, Retention: time.Hour})

	stop := s.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		_, _, sweeps := store.counts()
		return sweeps >= 3
	}, 2*time.Second, 5*time.Millisecond, "sweeper should keep running after a failure")

	stop()
	opens, closes, _ := store.counts()
	assert.Equal(t, opens, closes, "every handle must be released, including after failures")
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_SurvivesPanicAndOpenFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex
	inner := &memStore{
		cleanup: func(_ context.Context, sweep int) error {
			if sweep == 1 {
				panic("driver bug")
			}
			return nil
		},
	}
	opener := OpenerFunc(func(ctx context.Context) (Store, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("connection refused")
		}
		return inner.Open(ctx)
	})

	s := newTestSweeper(t, opener, Config{Interval: 5 * time.Millisecond, Retention: time.Hour})
	stop := s.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		_, _, sweeps := inner.counts()
		return sweeps >= 2
	}, 2*time.Second, 5*time.Millisecond)

	stop()
	opens, closes, _ := inner.counts()
	assert.Equal(t, opens, closes)
}

func TestRun_CancelDuringSleepStopsWithoutSweeping(t *testing.T) {
	store := &memStore{}
	s := newTestSweeper(t, store, Config{Interval: time.Hour, Retention: time.Hour})
	assert.Equal(t, StateIdle, s.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.State() == StateSleeping
	}, time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}

	opens, _, sweeps := store.counts()
	assert.Zero(t, opens)
	assert.Zero(t, sweeps)
	assert.Equal(t, StateStopped, s.State())
}

func TestRun_CancelDuringSweepLetsSweepFinish(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var sweepCtxErr error

	store := &memStore{
		cleanup: func(ctx context.Context, sweep int) error {
			close(entered)
			<-release
			sweepCtxErr = ctx.Err()
			return nil
		},
	}
	s := newTestSweeper(t, store, Config{Interval: time.Millisecond, Retention: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-entered
	assert.Equal(t, StateSweeping, s.State())
	cancel()
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after the sweep finished")
	}

	assert.NoError(t, sweepCtxErr, "in-progress sweep must not be interrupted")
	opens, closes, sweeps := store.counts()
	assert.Equal(t, 1, sweeps, "no sweep may start after cancellation")
	assert.Equal(t, opens, closes)
}

func TestSweep_Timeout(t *testing.T) {
	store := &memStore{
		cleanup: func(ctx context.Context, _ int) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	s := newTestSweeper(t, store, Config{
		Interval:  time.Hour,
		Retention: time.Hour,
		Timeout:   10 * time.Millisecond,
	})

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, closes, _ := store.counts()
	assert.Equal(t, 1, closes)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	s := newTestSweeper(t, &memStore{}, Config{Interval: time.Hour, Retention: time.Hour})

	stop := s.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		return s.State() == StateSleeping
	}, time.Second, time.Millisecond)

	err := s.Run(context.Background())
	assert.Error(t, err)
}

func TestStop_IsIdempotent(t *testing.T) {
	s := newTestSweeper(t, &memStore{}, Config{Interval: time.Hour, Retention: time.Hour})

	stop := s.Start(context.Background())
	stop()
	stop()

	assert.Equal(t, StateStopped, s.State())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opener  Opener
		config  Config
		wantErr bool
	}{
		{"valid", &memStore{}, Config{Interval: time.Minute, Retention: time.Hour}, false},
		{"interval longer than retention is allowed", &memStore{}, Config{Interval: 2 * time.Hour, Retention: time.Hour}, false},
		{"nil opener", nil, Config{Interval: time.Minute, Retention: time.Hour}, true},
		{"zero interval", &memStore{}, Config{Retention: time.Hour}, true},
		{"negative retention", &memStore{}, Config{Interval: time.Minute, Retention: -time.Hour}, true},
		{"negative timeout", &memStore{}, Config{Interval: time.Minute, Retention: time.Hour, Timeout: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opener, tt.config, WithLogger(quietLogger()))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultRetention, cfg.Retention)
	assert.Less(t, cfg.Interval, cfg.Retention)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "sleeping", StateSleeping.String())
	assert.Equal(t, "sweeping", StateSweeping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
