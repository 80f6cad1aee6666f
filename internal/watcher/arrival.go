package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/autoupdater/internal/logger"
)

// DefaultSettle is how long staging must stay quiet after an archive event
// before a wakeup is sent. Archives are usually copied in over several writes.
const DefaultSettle = 2 * time.Second

// WatchArrivals watches dir and its subdirectories and sends on the returned
// channel once events for files accepted by match have settled. Wakeups are
// coalesced: at most one is pending at a time. The watcher stops when ctx is done.
func WatchArrivals(ctx context.Context, dir string, match func(string) bool, settle time.Duration, log zerolog.Logger) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	wake := make(chan struct{}, 1)
	go runArrivals(ctx, fw, match, settle, wake, log)
	return wake, nil
}

func runArrivals(ctx context.Context, fw *fsnotify.Watcher, match func(string) bool, settle time.Duration, wake chan<- struct{}, log zerolog.Logger) {
	defer func() {
		if err := fw.Close(); err != nil {
			logger.Warning(log).Err(err).Msg("Unable to close staging watcher")
		}
	}()

	// Armed only by archive events.
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := fw.Add(event.Name); err != nil {
					logger.Warning(log).Err(err).Msgf("Unable to watch folder %s", event.Name)
				}
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !match(event.Name) {
				continue
			}
			log.Debug().Str("path", event.Name).Msg("Archive activity in staging")
			timer.Reset(settle)

		case <-timer.C:
			select {
			case wake <- struct{}{}:
			default:
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warning(log).Err(err).Msg("Staging watcher error")
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
