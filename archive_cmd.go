package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Inspect the clip archive",
		Args:  cobra.NoArgs,
	}

	archiveStatsCmd = &cobra.Command{
		Use:     "stats",
		Short:   "Show how much the archive holds",
		Example: paragraph("lyricast archive stats\nlyricast archive stats --archive memory"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			return runArchiveStats(cmd.Context(), a, cmd.OutOrStdout(), time.Now())
		},
	}
)

func init() {
	archiveCmd.AddCommand(archiveStatsCmd)
}

func runArchiveStats(ctx context.Context, a *app, w io.Writer, now time.Time) error {
	stats, err := a.archive.Stats(ctx)
	if err != nil {
		return fmt.Errorf("unable to read archive stats: %w", err)
	}

	oldest := "-"
	if !stats.Oldest.IsZero() {
		oldest = humanize.RelTime(stats.Oldest, now, "ago", "from now")
	}
	location := a.cfg.Archive.Backend
	if a.cfg.Archive.Path != "" {
		location += " " + faint(a.cfg.Archive.Path)
	}

	rows := [][2]string{
		{"Archive", location},
		{"Records", humanize.Comma(stats.Records)},
		{"Size", humanize.Bytes(uint64(stats.Bytes))}, //nolint:gosec
		{"Oldest", oldest},
		{"Window", a.cfg.Retention.Window.String()},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintln(w, label(r[0])+r[1]); err != nil {
			return fmt.Errorf("unable to write stats: %w", err)
		}
	}
	return nil
}
