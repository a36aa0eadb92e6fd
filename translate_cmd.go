package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	translateLang string
	translateSong string

	translateCmd = &cobra.Command{
		Use:   "translate [TEXT]",
		Short: "Translate lyrics with translate-shell",
		Long: paragraph(fmt.Sprintf("\n%s a lyric line, or every line read from stdin. Repeated lines such as a chorus are served from the cache and every fresh translation is archived.",
			keyword("Translate"))),
		Example: paragraph("lyricast translate \"Cash rules everything around me\" --lang fr\ncat verse.txt | lyricast translate --song cream --lang es"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := inputLines(args, os.Stdin)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			return runTranslate(cmd.Context(), a, translateSong, lines, translateLang, cmd.OutOrStdout())
		},
	}
)

func init() {
	translateCmd.Flags().StringVarP(&translateLang, "lang", "l", "", "target language tag")
	translateCmd.Flags().StringVarP(&translateSong, "song", "s", "", "song id the lines belong to")
	_ = translateCmd.MarkFlagRequired("lang")
}

func runTranslate(ctx context.Context, a *app, song string, lines []string, lang string, w io.Writer) error {
	for i, line := range lines {
		translated, err := a.service.Translate(ctx, song, line, lang)
		if err != nil {
			return fmt.Errorf("unable to translate line %d: %w", i+1, err)
		}
		if _, err := fmt.Fprintln(w, translated); err != nil {
			return fmt.Errorf("unable to write translation: %w", err)
		}
	}
	return nil
}
