package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/lyricast/internal/config"
)

var (
	sweepOnce bool

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete archived clips older than the retention window",
		Long: paragraph(fmt.Sprintf("\n%s the archive on a schedule until interrupted. Each sweep opens its own archive session; a failed sweep is logged and retried on the next tick.",
			keyword("Sweep"))),
		Example: paragraph("lyricast sweep\nlyricast sweep --once"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if !sweepOnce && viper.ConfigFileUsed() != "" {
				config.Watch(viper.GetViper(), a.reload)
			}
			return runSweep(ctx, a, sweepOnce, cmd.OutOrStdout())
		},
	}
)

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "run a single sweep and exit")
	sweepCmd.Flags().Duration("interval", 0, "time between sweeps")
	sweepCmd.Flags().Duration("window", 0, "delete records older than this")

	_ = viper.BindPFlag("retention.interval", sweepCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("retention.window", sweepCmd.Flags().Lookup("window"))
}

func runSweep(ctx context.Context, a *app, once bool, w io.Writer) error {
	sw, err := a.sweeper()
	if err != nil {
		return err
	}

	if once {
		deleted, err := sw.Sweep(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "Deleted %s %s older than %s\n",
			humanize.Comma(deleted), pluralize(deleted, "record"), a.cfg.Retention.Window)
		return err //nolint:wrapcheck
	}

	_, _ = fmt.Fprintf(w, "Sweeping every %s, keeping %s. Press Ctrl+C to stop.\n",
		a.cfg.Retention.Interval, a.cfg.Retention.Window)
	return sw.Run(ctx) //nolint:wrapcheck
}

func pluralize(n int64, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
