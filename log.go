package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"

	"github.com/dgnsrekt/lyricast/internal/config"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to resolve cache directory: %w", err)
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

// setupLog points the default logger at stderr or at the log file in the
// user cache directory. The returned func closes the log file.
func setupLog(toStderr bool, level log.Level) (func() error, error) {
	log.SetOutput(io.Discard)
	log.SetLevel(level)
	log.SetReportTimestamp(true)

	if toStderr {
		log.SetOutput(os.Stderr)
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			log.SetFormatter(log.JSONFormatter)
		}
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}
