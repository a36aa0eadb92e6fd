package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/lyricast/internal/lyrics"
)

var (
	songsLang  string
	songsWatch bool

	songsCmd = &cobra.Command{
		Use:   "songs",
		Short: "List the published songs",
		Long: paragraph(fmt.Sprintf("\n%s the songs file, optionally with titles translated. With --watch the list is printed again whenever the file changes; only songs that changed are translated again. SIGHUP drops every cached translation.",
			keyword("List"))),
		Example: paragraph("lyricast songs --file songs.yml\nlyricast songs --lang es --watch"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Lyrics.SongsFile == "" {
				return errors.New("no songs file configured: set lyrics.songs_file or pass --file")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if songsWatch {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, syscall.SIGHUP)
				defer signal.Stop(hup)
				return watchSongs(ctx, a, cfg.Lyrics.SongsFile, songsLang, cmd.OutOrStdout(), hup)
			}
			_, err = runSongs(ctx, a, songsLang, cmd.OutOrStdout())
			return err
		},
	}
)

func init() {
	songsCmd.Flags().String("file", "", "YAML songs file")
	songsCmd.Flags().StringVarP(&songsLang, "lang", "l", "", "translate titles into this language")
	songsCmd.Flags().BoolVarP(&songsWatch, "watch", "w", false, "print the list again whenever the file changes")

	_ = viper.BindPFlag("lyrics.songs_file", songsCmd.Flags().Lookup("file"))
}

func runSongs(ctx context.Context, a *app, lang string, w io.Writer) ([]lyrics.Song, error) {
	songs, err := a.service.Collection(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list songs: %w", err)
	}
	return songs, printSongs(ctx, a, songs, lang, w)
}

// refreshSongs rereads the collection and drops the cached results of every
// song that changed or disappeared since prev.
func refreshSongs(ctx context.Context, a *app, prev []lyrics.Song, lang string, w io.Writer) ([]lyrics.Song, error) {
	a.service.InvalidateCollection()
	next, err := a.service.Collection(ctx)
	if err != nil {
		return prev, fmt.Errorf("unable to reload songs: %w", err)
	}

	dropped := 0
	changed := lyrics.ChangedSongs(prev, next)
	for _, id := range changed {
		dropped += a.service.InvalidateSong(id)
	}
	log.Debug("Songs reloaded", "songs", len(next), "changed", len(changed), "dropped", dropped)

	return next, printSongs(ctx, a, next, lang, w)
}

func printSongs(ctx context.Context, a *app, songs []lyrics.Song, lang string, w io.Writer) error {
	for _, song := range songs {
		title := song.Title
		if lang != "" && title != "" {
			translated, err := a.service.Translate(ctx, song.ID, title, lang)
			if err != nil {
				return fmt.Errorf("unable to translate %q: %w", song.ID, err)
			}
			title = translated
		}
		if _, err := fmt.Fprintln(w, label(song.ID)+title+" "+faint(song.Artist)); err != nil {
			return fmt.Errorf("unable to write songs: %w", err)
		}
	}
	_, err := fmt.Fprintf(w, "%d %s\n", len(songs), pluralize(int64(len(songs)), "song"))
	return err //nolint:wrapcheck
}

// watchSongs prints the collection and prints it again after every change
// to the file until ctx is cancelled. A value on reload drops every cached
// lyrics result first.
func watchSongs(ctx context.Context, a *app, path, lang string, w io.Writer, reload <-chan os.Signal) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to watch songs file: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Editors often replace the file, so watch the directory.
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("unable to watch songs file: %w", err)
	}

	songs, err := runSongs(ctx, a, lang, w)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != path || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			next, err := refreshSongs(ctx, a, songs, lang, w)
			if err != nil {
				log.Warn("Keeping previous song list", "path", path, "err", err)
				continue
			}
			songs = next
		case <-reload:
			dropped := a.service.InvalidateLyrics()
			log.Info("Dropped cached lyrics", "count", dropped)
			next, err := runSongs(ctx, a, lang, w)
			if err != nil {
				log.Warn("Keeping previous song list", "path", path, "err", err)
				continue
			}
			songs = next
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Songs watcher error", "err", err)
		}
	}
}
