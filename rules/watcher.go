package rules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a catalog file when it changes on disk. Reload bursts
// (editors typically write several events per save) are debounced to a
// single reload.
type Watcher struct {
	path     string
	registry *Registry
	catalog  *Catalog
	logger   *slog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the catalog file at path.
func NewWatcher(path string, registry *Registry, catalog *Catalog, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory rather than the file itself: most editors replace
	// the file on save, which drops a watch registered on the old inode.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Watcher{
		path:     path,
		registry: registry,
		catalog:  catalog,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		watcher:  fsw,
	}, nil
}

// Watch blocks until ctx is cancelled, reloading the catalog after each
// change to the watched file. A failed reload is logged and leaves the
// previous snapshot active.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "error", err)

		case <-fire:
			fire = nil
			if err := LoadFile(w.path, w.registry, w.catalog); err != nil {
				w.logger.Error("catalog reload failed, keeping previous snapshot",
					"path", w.path, "error", err)
				continue
			}
			w.logger.Info("catalog reloaded",
				"path", w.path, "version", w.catalog.Version(), "rules", w.catalog.Len())
		}
	}
}
