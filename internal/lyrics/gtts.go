package lyrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// Google rejects longer requests.
	maxTextSize = 5000
	maxMP3Size  = 50 * 1024 * 1024
)

// GTTSConfig holds configuration for the gTTS synthesizer.
type GTTSConfig struct {
	// Binary is the gtts-cli executable, defaults to "gtts-cli"
	Binary string

	// Language used when a call passes none, defaults to "en"
	Language string

	// Slow speech (--slow flag)
	Slow bool

	// Rate limit requests per minute to avoid being blocked (defaults to 50)
	RequestsPerMinute int

	// Timeout for a single gtts-cli run (defaults to 30s)
	Timeout time.Duration
}

// GTTSSynthesizer produces MP3 audio with gtts-cli (Google Translate TTS).
// It needs no API key but does need network access.
type GTTSSynthesizer struct {
	binary   string
	language string
	slow     bool
	timeout  time.Duration

	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// NewGTTSSynthesizer creates a gTTS synthesizer.
func NewGTTSSynthesizer(config GTTSConfig, logger *log.Logger) *GTTSSynthesizer {
	if config.Binary == "" {
		config.Binary = "gtts-cli"
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default().WithPrefix("gtts")
	}

	return &GTTSSynthesizer{
		binary:      config.Binary,
		language:    config.Language,
		slow:        config.Slow,
		timeout:     config.Timeout,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		logger:      logger,
	}
}

// Synthesize converts text to MP3 audio.
func (g *GTTSSynthesizer) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(text), maxTextSize)
	}
	if lang == "" {
		lang = g.language
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	args := []string{text, "-l", strings.ToLower(lang)}
	if g.slow {
		args = append(args, "--slow")
	}
	args = append(args, "-o", "-")

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Stdin = strings.NewReader("")
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gTTS synthesis timeout: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", g.binary, err, strings.TrimSpace(stderr.String()))
	}

	mp3 := stdout.Bytes()
	if len(mp3) == 0 {
		return nil, fmt.Errorf("%s produced no output, stderr: %s", g.binary, strings.TrimSpace(stderr.String()))
	}
	if len(mp3) > maxMP3Size {
		return nil, fmt.Errorf("%s output too large: %d bytes (max %d)", g.binary, len(mp3), maxMP3Size)
	}

	g.logger.Debug("Synthesized speech", "lang", lang, "chars", len(text), "bytes", len(mp3), "took", time.Since(start))
	return mp3, nil
}

// Validate checks that the gtts-cli binary can be found.
func (g *GTTSSynthesizer) Validate() error {
	if _, err := exec.LookPath(g.binary); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s not found in PATH: %w\n\nInstall with: pip install gtts", g.binary, err)
		}
		return fmt.Errorf("cannot use %s: %w", g.binary, err)
	}
	return nil
}

var _ Synthesizer = (*GTTSSynthesizer)(nil)
