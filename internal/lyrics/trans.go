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

// TransConfig holds configuration for the translate-shell translator.
type TransConfig struct {
	// Binary is the translate-shell executable, defaults to "trans"
	Binary string

	// Rate limit requests per minute (defaults to 60)
	RequestsPerMinute int

	// Timeout for a single run (defaults to 30s)
	Timeout time.Duration
}

// TransTranslator translates text with translate-shell. The text is passed
// on stdin so it is never parsed as an option.
type TransTranslator struct {
	binary  string
	timeout time.Duration

	rateLimiter *rate.Limiter
	logger      *log.Logger
}

// NewTransTranslator creates a translate-shell translator.
func NewTransTranslator(config TransConfig, logger *log.Logger) *TransTranslator {
	if config.Binary == "" {
		config.Binary = "trans"
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default().WithPrefix("trans")
	}

	return &TransTranslator{
		binary:      config.Binary,
		timeout:     config.Timeout,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		logger:      logger,
	}
}

// Translate returns text translated into lang.
func (t *TransTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	if text == "" {
		return "", ErrEmptyText
	}
	if len(text) > maxTextSize {
		return "", fmt.Errorf("text too long: %d characters (max %d)", len(text), maxTextSize)
	}

	if err := t.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, "-brief", "-no-ansi", ":"+lang)
	cmd.Stdin = strings.NewReader(text)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("translation timeout: %w", ctx.Err())
		}
		return "", fmt.Errorf("%s failed: %w, stderr: %s", t.binary, err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("%s produced no output, stderr: %s", t.binary, strings.TrimSpace(stderr.String()))
	}

	t.logger.Debug("Translated text", "lang", lang, "chars", len(text), "took", time.Since(start))
	return out, nil
}

// Validate checks that the translate-shell binary can be found.
func (t *TransTranslator) Validate() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s not found in PATH: %w\n\nInstall translate-shell from https://www.soimort.org/translate-shell", t.binary, err)
		}
		return fmt.Errorf("cannot use %s: %w", t.binary, err)
	}
	return nil
}

var _ Translator = (*TransTranslator)(nil)
