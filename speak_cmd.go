package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	speakLang   string
	speakOutput string

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT]",
		Short: "Synthesize lyrics to MP3 with gTTS",
		Long: paragraph(fmt.Sprintf("\n%s a lyric line, or every line read from stdin, and write the MP3 audio to a file or a pipe. Clips are cached and archived.",
			keyword("Speak"))),
		Example: paragraph("lyricast speak \"C.R.E.A.M.\" -o cream.mp3\ncat verse.txt | lyricast speak --lang es > verse.mp3"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := inputLines(args, os.Stdin)
			if err != nil {
				return err
			}

			out, closeOut, err := speakOutputWriter(speakOutput)
			if err != nil {
				return err
			}
			defer closeOut() //nolint:errcheck

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			lang := speakLang
			if lang == "" {
				lang = cfg.GTTS.Language
			}
			return runSpeak(cmd.Context(), a, lines, lang, out, cmd.ErrOrStderr())
		},
	}
)

func init() {
	speakCmd.Flags().StringVarP(&speakLang, "lang", "l", "", "language tag (default from config)")
	speakCmd.Flags().StringVarP(&speakOutput, "output", "o", "", "write audio to this file instead of stdout")
}

var errNoInput = errors.New("no lyrics given")

// inputLines returns the argument, or the non-empty lines of r when there
// is no argument. speak and translate share it.
func inputLines(args []string, r io.Reader) ([]string, error) {
	if len(args) == 1 {
		if strings.TrimSpace(args[0]) == "" {
			return nil, errNoInput
		}
		return args, nil
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read from stdin: %w", err)
	}
	var lines []string
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, errNoInput
	}
	return lines, nil
}

func speakOutputWriter(path string) (io.Writer, func() error, error) {
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create output file: %w", err)
		}
		return f, f.Close, nil
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return nil, nil, errors.New("refusing to write audio to a terminal: use --output or redirect stdout")
	}
	return os.Stdout, func() error { return nil }, nil
}

func runSpeak(ctx context.Context, a *app, lines []string, lang string, out, status io.Writer) error {
	clips, err := a.service.SpeakAll(ctx, lines, lang)
	if err != nil {
		return fmt.Errorf("unable to speak: %w", err)
	}

	var total uint64
	for _, clip := range clips {
		n, err := out.Write(clip)
		if err != nil {
			return fmt.Errorf("unable to write audio: %w", err)
		}
		total += uint64(n) //nolint:gosec
	}

	stats := a.store.GetStatistics()
	_, _ = fmt.Fprintf(status, "%s %d %s, %s %s\n",
		keyword("Spoke"), len(lines), pluralize(int64(len(lines)), "line"),
		humanize.Bytes(total),
		faint(fmt.Sprintf("(cache hit rate %.1f%%)", stats.HitRate)))
	return nil
}
