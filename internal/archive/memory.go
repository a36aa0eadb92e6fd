package archive

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/lyricast/internal/retention"
)

// MemoryArchive keeps records in process memory. It has the same contract
// as Archive and is used when no database path is configured.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[int64]Record
	nextID  int64
	now     func() time.Time
}

// NewMemoryArchive creates an empty in-memory archive. A nil now uses
// time.Now.
func NewMemoryArchive(now func() time.Time) *MemoryArchive {
	if now == nil {
		now = time.Now
	}
	return &MemoryArchive{
		records: make(map[int64]Record),
		now:     now,
	}
}

// Append stores r and returns its id.
func (m *MemoryArchive) Append(_ context.Context, r Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.nextID++
	r.ID = m.nextID
	r.Payload = append([]byte(nil), r.Payload...)
	m.records[r.ID] = r

	return r.ID, nil
}

// Get reads a record by id.
func (m *MemoryArchive) Get(_ context.Context, id int64) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Payload = append([]byte(nil), r.Payload...)
	return &r, nil
}

// Count returns the number of stored records.
func (m *MemoryArchive) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.records)), nil
}

// Stats summarizes the archive contents.
func (m *MemoryArchive) Stats(context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, r := range m.records {
		stats.Records++
		stats.Bytes += int64(len(r.Payload))
		if stats.Oldest.IsZero() || r.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = r.CreatedAt
		}
	}
	return stats, nil
}

// Open returns a handle sharing the archive's records.
func (m *MemoryArchive) Open(context.Context) (retention.Store, error) {
	return memorySession{m}, nil
}

// Close is a no-op.
func (m *MemoryArchive) Close() error {
	return nil
}

type memorySession struct {
	m *MemoryArchive
}

func (s memorySession) CleanupOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	cutoff := s.m.now().Add(-retention)
	var deleted int64
	for id, r := range s.m.records {
		if r.CreatedAt.Before(cutoff) {
			delete(s.m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s memorySession) Close() error {
	return nil
}

var _ retention.Opener = (*MemoryArchive)(nil)
