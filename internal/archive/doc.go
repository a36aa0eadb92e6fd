// Package archive provides an append-only record store for synthesized
// speech and translations, backed by SQLite with zstd-compressed payloads,
// plus an in-memory equivalent. Both hand out per-sweep sessions to the
// retention sweeper.
package archive
