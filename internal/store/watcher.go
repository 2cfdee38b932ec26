package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// watcherDebounceInterval is how often the watcher checks for
	// pending filesystem events to batch rapid writes into a single
	// notification.
	watcherDebounceInterval = 500 * time.Millisecond

	// watcherSettleThreshold is how long a path must go without new
	// events before it is reported.
	watcherSettleThreshold = 300 * time.Millisecond
)

// Watcher monitors the notes directory and reports batches of changed
// tracked documents once writes settle. The controller uses it to mark
// cached reconciliation results stale.
type Watcher struct {
	store   *Store
	notify  func(paths []string)
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a file watcher over the given store. notify is
// called from the watch loop with each settled batch of normalized
// relative paths.
func NewWatcher(store *Store, notify func(paths []string), logger *slog.Logger) *Watcher {
	return &Watcher{
		store:  store,
		notify: notify,
		logger: logger,
	}
}

// Watch starts watching the notes directory for changes. It blocks
// until the context is cancelled. Directories are watched recursively.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := w.store.Root()
	if dir == "" {
		return fmt.Errorf("watching requires an OS-backed store")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	if err := w.addRecursive(dir); err != nil {
		return fmt.Errorf("watching notes dir: %w", err)
	}

	w.logger.Info("file watcher started", slog.String("dir", dir))

	// Debounce: batch rapid writes into a single notification.
	pending := make(map[string]time.Time)

	ticker := time.NewTicker(watcherDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()

				// If a new directory was created, watch it recursively.
				// Use Lstat to avoid following symlinks that could point
				// outside the notes directory.
				if event.Has(fsnotify.Create) {
					info, err := os.Lstat(event.Name)
					if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
						_ = w.addRecursive(event.Name)
					}
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// For rename, fsnotify fires Remove on the old path; the
				// new path fires Create separately. A deletion is a
				// change worth reporting too.
				pending[event.Name] = time.Now()
				// Drop watches for deleted directories. On Linux inotify
				// handles this automatically, but other platforms may leak.
				_ = watcher.Remove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			batch := w.settle(dir, pending)
			if len(batch) > 0 {
				w.logger.Debug("local changes detected", slog.Int("paths", len(batch)))
				w.notify(batch)
			}
		}
	}
}

// settle removes pending entries that have gone quiet and returns the
// tracked document paths among them, normalized and sorted.
func (w *Watcher) settle(dir string, pending map[string]time.Time) []string {
	now := time.Now()

	var batch []string

	for absPath, t := range pending {
		if now.Sub(t) < watcherSettleThreshold {
			continue
		}

		delete(pending, absPath)

		relPath, err := filepath.Rel(dir, absPath)
		if err != nil {
			w.logger.Warn("computing relative path", slog.String("error", err.Error()))
			continue
		}

		relPath = NormalizePath(relPath)
		if w.store.Tracked(relPath) {
			batch = append(batch, relPath)
		}
	}

	sort.Strings(batch)

	return batch
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if w.shouldIgnore(path) && path != dir {
			return filepath.SkipDir
		}

		// Skip symlinked directories to prevent watching outside the
		// notes tree. WalkDir does not follow symlinks for entries it
		// discovers, but the root argument is resolved, so we check
		// each directory entry explicitly.
		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}

	return base == "node_modules"
}
