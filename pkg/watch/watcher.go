// Package watch re-runs a document whenever its source changes on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces editor save bursts into one rerun.
const DefaultDebounce = 500 * time.Millisecond

// Watcher observes a document source and invokes a callback after changes
// settle.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher with the default debounce window.
func NewWatcher(logger zerolog.Logger) *Watcher {
	return &Watcher{
		logger:   logger.With().Str("component", "watch").Logger(),
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the settle window.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Watch observes source (a file or a package directory) and calls rerun after
// each settled change. It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context, source string, rerun func(context.Context)) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("failed to stat watch source: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	w.watcher = watcher

	if info.IsDir() {
		if err := w.watchDirectory(source); err != nil {
			return fmt.Errorf("failed to watch directory: %w", err)
		}
	} else {
		// Watch the containing directory so rename-based saves keep firing.
		if err := watcher.Add(filepath.Dir(source)); err != nil {
			return fmt.Errorf("failed to watch file: %w", err)
		}
	}

	w.logger.Info().Str("source", source).Msg("Watching for changes")
	w.processEvents(ctx, source, info.IsDir(), rerun)
	return nil
}

// watchDirectory registers every subdirectory, skipping vendored packages.
func (w *Watcher) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__weft__" {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context, source string, isDir bool, rerun func(context.Context)) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(event.Name, source, isDir) {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Source changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				rerun(ctx)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// relevant filters events down to the watched file, or to document files when
// watching a package directory.
func (w *Watcher) relevant(changed, source string, isDir bool) bool {
	if !isDir {
		abs, err := filepath.Abs(changed)
		if err != nil {
			return false
		}
		want, err := filepath.Abs(source)
		if err != nil {
			return false
		}
		return abs == want
	}
	switch strings.ToLower(filepath.Ext(changed)) {
	case ".weft", ".bweft", ".json", ".yaml", ".yml", ".toml", ".txt", ".md", ".markdown":
		return true
	}
	return false
}
