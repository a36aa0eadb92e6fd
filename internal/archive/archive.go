package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary

	"github.com/dgnsrekt/lyricast/internal/retention"
)

// compressThreshold is the payload size above which compression is attempted.
const compressThreshold = 1024

// Archive is an append-only SQLite store of synthesized clips and
// translations. Old records are removed by the retention sweeper through
// short-lived Sessions.
type Archive struct {
	db     *sql.DB
	path   string
	logger *log.Logger
	now    func() time.Time

	// Compression
	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder
	decoderOpts      []zstd.DOption
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the archive logger.
func WithLogger(l *log.Logger) Option {
	return func(a *Archive) {
		a.logger = l
	}
}

// WithClock replaces time.Now as the archive's time source.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		a.now = now
	}
}

// WithCompressionLevel sets the zstd level (1-22). Zero disables compression.
func WithCompressionLevel(level int) Option {
	return func(a *Archive) {
		a.compressionLevel = level
	}
}

// WithMaxPayloadSize caps how large a compressed payload may grow when it is
// read back. It must be at least one byte.
func WithMaxPayloadSize(n uint64) Option {
	return func(a *Archive) {
		a.decoderOpts = append(a.decoderOpts, zstd.WithDecoderMaxMemory(n))
	}
}

// Open opens (or creates) the archive database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Archive, error) {
	const dbDirPerm = 0o750

	if path == "" {
		return nil, errors.New("archive path cannot be empty")
	}

	a := &Archive{
		path:             path,
		now:              time.Now,
		compressionLevel: 3,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.Default().WithPrefix("archive")
	}

	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate archive: %w", err)
	}
	a.db = db

	if a.compressionLevel > 0 {
		a.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(a.compressionLevel)))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// The decoder is always available so records written with compression
	// stay readable after it is turned off.
	a.decoder, err = zstd.NewReader(nil, a.decoderOpts...)
	if err != nil {
		if a.encoder != nil {
			_ = a.encoder.Close()
		}
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	a.logger.Info("Archive opened", "path", path)
	return a, nil
}

// dsn builds a connection string that applies pragmas to every pooled
// connection.
func dsn(path string) string {
	return "file:" + filepath.ToSlash(path) +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(wal)" +
		"&_pragma=synchronous(normal)"
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT    NOT NULL,
			key        TEXT    NOT NULL,
			language   TEXT    NOT NULL DEFAULT '',
			text       TEXT    NOT NULL DEFAULT '',
			payload    BLOB,
			compressed INTEGER NOT NULL DEFAULT 0,
			size       INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS records_created_at ON records (created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append stores r and returns its id. A zero CreatedAt is set to now.
func (a *Archive) Append(ctx context.Context, r Record) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = a.now()
	}

	payload, compressed := a.compress(r.Payload)

	res, err := a.db.ExecContext(ctx,
		`INSERT INTO records (kind, key, language, text, payload, compressed, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Kind, r.Key, r.Language, r.Text, payload, compressed, len(r.Payload), r.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("append record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append record: %w", err)
	}

	a.logger.Debug("Record archived", "id", id, "kind", r.Kind, "size", len(r.Payload), "compressed", compressed)
	return id, nil
}

// Get reads a record by id.
func (a *Archive) Get(ctx context.Context, id int64) (*Record, error) {
	var (
		r          Record
		payload    []byte
		compressed bool
		createdAt  int64
	)

	err := a.db.QueryRowContext(ctx,
		`SELECT id, kind, key, language, text, payload, compressed, created_at
		 FROM records WHERE id = ?`, id).
		Scan(&r.ID, &r.Kind, &r.Key, &r.Language, &r.Text, &payload, &compressed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}

	if compressed {
		payload, err = a.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorrupted, id, err)
		}
	}
	r.Payload = payload
	r.CreatedAt = time.Unix(0, createdAt)

	return &r, nil
}

// Count returns the number of stored records.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Stats summarizes the archive contents.
func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	var (
		stats  Stats
		oldest sql.NullInt64
		size   sql.NullInt64
	)

	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), SUM(size) FROM records`).
		Scan(&stats.Records, &oldest, &size)
	if err != nil {
		return Stats{}, fmt.Errorf("archive stats: %w", err)
	}

	if oldest.Valid {
		stats.Oldest = time.Unix(0, oldest.Int64)
	}
	stats.Bytes = size.Int64
	return stats, nil
}

// Open hands out a Session bound to one pooled connection. It implements
// retention.Opener.
func (a *Archive) Open(ctx context.Context) (retention.Store, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn, now: a.now, logger: a.logger}, nil
}

// Close closes the database and releases the codecs.
func (a *Archive) Close() error {
	if a.encoder != nil {
		_ = a.encoder.Close()
	}
	if a.decoder != nil {
		a.decoder.Close()
	}
	return a.db.Close()
}

// compress returns the bytes to store and whether they are compressed. Only
// payloads above the threshold that actually shrink are compressed.
func (a *Archive) compress(payload []byte) ([]byte, bool) {
	if a.encoder == nil || len(payload) <= compressThreshold {
		return payload, false
	}

	compressed := a.encoder.EncodeAll(payload, nil)
	if len(compressed) >= len(payload) {
		return payload, false
	}
	return compressed, true
}

// Session is a retention.Store scoped to a single sweep.
type Session struct {
	conn   *sql.Conn
	now    func() time.Time
	logger *log.Logger
}

// CleanupOlderThan deletes records created before now - retention.
func (s *Session) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM records WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}

	s.logger.Debug("Expired records deleted", "count", deleted, "cutoff", cutoff)
	return deleted, nil
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

var (
	_ retention.Opener = (*Archive)(nil)
	_ retention.Store  = (*Session)(nil)
)
