package host

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StatsWatcher fires once per rewrite of a bundler stats file, which the
// bundler emits at the end of every compilation pass in watch mode.
type StatsWatcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewStatsWatcher watches the directory holding statsPath so that atomic
// replace-by-rename writes are seen too.
func NewStatsWatcher(statsPath string, debounce time.Duration, logger *slog.Logger) (*StatsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(statsPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", statsPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &StatsWatcher{path: abs, debounce: debounce, watcher: watcher, logger: logger}, nil
}

// Run calls onChange after each settled change to the stats file until ctx is
// done or the watcher is closed. Calls never overlap.
func (w *StatsWatcher) Run(ctx context.Context, onChange func(context.Context)) error {
	trigger := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case <-trigger:
			onChange(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops the underlying watcher.
func (w *StatsWatcher) Close() error {
	return w.watcher.Close()
}
