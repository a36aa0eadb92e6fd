package archive

import (
	"errors"
	"time"
)

// Common errors for archive operations
var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrCorrupted is returned when a stored payload cannot be decoded
	ErrCorrupted = errors.New("record payload corrupted")
)

// Record kinds
const (
	KindSpeech      = "speech"
	KindTranslation = "translation"
)

// Record is one archived result.
type Record struct {
	ID        int64
	Kind      string // KindSpeech or KindTranslation
	Key       string // Cache key the result was produced for
	Language  string
	Text      string
	Payload   []byte
	CreatedAt time.Time
}

// Stats summarizes an archive.
type Stats struct {
	Records int64
	Bytes   int64     // Uncompressed payload bytes
	Oldest  time.Time // Zero when the archive is empty
}
