// Package lyrics translates and speaks song lyrics, caching every result
// in a cache.Store and archiving synthesized audio.
package lyrics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/lyricast/internal/archive"
	"github.com/dgnsrekt/lyricast/internal/cache"
)

// Key layout. Everything song related lives under lyricsPrefix so a single
// prefix removal drops it all.
const (
	lyricsPrefix  = "lyrics:"
	speechPrefix  = "speech:"
	collectionKey = lyricsPrefix + "collection"
)

// DefaultCollectionTTL is how long a collection snapshot is served before
// it is rebuilt.
const DefaultCollectionTTL = 5 * time.Minute

// Common errors for lyrics operations
var (
	// ErrInvalidLanguage is returned when a language tag cannot be parsed
	ErrInvalidLanguage = errors.New("invalid language tag")

	// ErrEmptyText is returned when there is nothing to translate or speak
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrNoSource is returned by Collection when no Source is configured
	ErrNoSource = errors.New("no collection source configured")
)

// Translator turns text into another language.
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) ([]byte, error)
}

// Source lists the published songs.
type Source interface {
	Songs(ctx context.Context) ([]Song, error)
}

// Archiver stores synthesized results for later inspection.
type Archiver interface {
	Append(ctx context.Context, r archive.Record) (int64, error)
}

// Song is one entry of the published collection.
type Song struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
}

// Service caches translations, speech and the song collection.
type Service struct {
	store       *cache.Store
	translator  Translator
	synthesizer Synthesizer
	source      Source
	archiver    Archiver
	logger      *log.Logger

	collectionTTL time.Duration
	concurrency   int
}

// Option configures a Service.
type Option func(*Service)

// WithTranslator sets the translation backend.
func WithTranslator(t Translator) Option {
	return func(s *Service) { s.translator = t }
}

// WithSynthesizer sets the speech backend.
func WithSynthesizer(syn Synthesizer) Option {
	return func(s *Service) { s.synthesizer = syn }
}

// WithSource sets where the collection is read from.
func WithSource(src Source) Option {
	return func(s *Service) { s.source = src }
}

// WithArchiver archives every freshly synthesized clip.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCollectionTTL sets the absolute lifetime of the collection snapshot.
func WithCollectionTTL(d time.Duration) Option {
	return func(s *Service) { s.collectionTTL = d }
}

// WithConcurrency bounds the number of parallel syntheses in SpeakAll.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// NewService creates a Service backed by store.
func NewService(store *cache.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		collectionTTL: DefaultCollectionTTL,
		concurrency:   4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("lyrics")
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Translate returns text translated into lang for the given song. Results
// use the store's default sliding expiration and fresh translations are
// archived.
func (s *Service) Translate(ctx context.Context, songID, text, lang string) (string, error) {
	if s.translator == nil {
		return "", errors.New("no translator configured")
	}
	tag, err := parseLanguage(lang)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	key := TranslationKey(songID, text, tag)
	return cache.GetOrCreate(ctx, s.store, key, func(ctx context.Context) (string, error) {
		translated, err := s.translator.Translate(ctx, text, tag)
		if err != nil {
			return "", err
		}
		s.archive(ctx, archive.Record{
			Kind:     archive.KindTranslation,
			Key:      key,
			Language: tag,
			Text:     text,
			Payload:  []byte(translated),
		})
		return translated, nil
	})
}

// Speak returns audio for text in lang. Newly synthesized audio is appended
// to the archive; archive failures are logged and do not fail the call.
func (s *Service) Speak(ctx context.Context, text, lang string) ([]byte, error) {
	if s.synthesizer == nil {
		return nil, errors.New("no synthesizer configured")
	}
	tag, err := parseLanguage(lang)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	key := SpeechKey(text, tag)
	return cache.GetOrCreate(ctx, s.store, key, func(ctx context.Context) ([]byte, error) {
		audio, err := s.synthesizer.Synthesize(ctx, text, tag)
		if err != nil {
			return nil, err
		}
		s.archive(ctx, archive.Record{
			Kind:     archive.KindSpeech,
			Key:      key,
			Language: tag,
			Text:     text,
			Payload:  audio,
		})
		return audio, nil
	})
}

// SpeakAll speaks every line concurrently and returns the clips in input
// order. The first failure cancels the remaining work.
func (s *Service) SpeakAll(ctx context.Context, lines []string, lang string) ([][]byte, error) {
	clips := make([][]byte, len(lines))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			audio, err := s.Speak(ctx, line, lang)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			clips[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

// Collection returns the published songs. The snapshot expires a fixed
// time after it was built, regardless of how often it is read.
func (s *Service) Collection(ctx context.Context) ([]Song, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	return cache.GetOrCreate(ctx, s.store, collectionKey, s.source.Songs, cache.WithTTL(s.collectionTTL))
}

// InvalidateCollection drops the collection snapshot so the next
// Collection call reads the source again.
func (s *Service) InvalidateCollection() {
	s.store.Remove(collectionKey)
}

// InvalidateSong drops every cached result for one song.
func (s *Service) InvalidateSong(songID string) int {
	return s.store.RemoveByPrefix(songPrefix(songID))
}

// InvalidateLyrics drops every cached lyrics result, including the
// collection snapshot. Speech is left alone.
func (s *Service) InvalidateLyrics() int {
	return s.store.RemoveByPrefix(lyricsPrefix)
}

func (s *Service) archive(ctx context.Context, r archive.Record) {
	if s.archiver == nil {
		return
	}
	if _, err := s.archiver.Append(ctx, r); err != nil {
		s.logger.Warn("Failed to archive result", "key", r.Key, "err", err)
	}
}

// TranslationKey is the cache key of one text of a song translated into
// lang.
func TranslationKey(songID, text, lang string) string {
	return songPrefix(songID) + "translation:" + lang + ":" + textHash(text)
}

// SpeechKey is the cache key of a synthesized clip.
func SpeechKey(text, lang string) string {
	return speechPrefix + lang + ":" + textHash(text)
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

func songPrefix(songID string) string {
	return lyricsPrefix + "song:" + songID + ":"
}

func parseLanguage(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidLanguage, lang, err)
	}
	return tag.String(), nil
}
