package selector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/piceval/pkg/logging"
)

// DefaultDebounce is how long the watcher waits for further changes before
// reporting a batch.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler receives the paths touched during one debounce window.
type ChangeHandler func(changed []string)

// Watcher reports file creations, removals and renames under the asset
// directories. It never touches a Selector itself; the handler decides what
// to do, typically a serialized Rebuild.
type Watcher struct {
	roots    []string
	ignore   ignoreSet
	debounce time.Duration
	logger   hclog.Logger

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
}

// NewWatcher registers every non-ignored directory under roots.
func NewWatcher(roots, ignore []string, debounce time.Duration, logger hclog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		roots:    roots,
		ignore:   newIgnoreSet(ignore),
		debounce: debounce,
		logger:   logging.OrNull(logger).Named("watcher"),
		watcher:  fw,
	}
	for _, root := range roots {
		if err := w.addTree(root, true); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// WatchSelector builds a Watcher over the selector's asset directories and
// ignore list.
func WatchSelector(s *Selector, debounce time.Duration, logger hclog.Logger) (*Watcher, error) {
	return NewWatcher(s.AssetDirs(), s.IgnoreDirs(), debounce, logger)
}

// addTree watches root and every non-ignored directory below it. A root
// is walked with a trailing separator so a symlinked root is followed while
// event paths keep the configured name.
func (w *Watcher) addTree(root string, isRoot bool) error {
	walkRoot := filepath.Clean(root)
	if isRoot && !strings.HasSuffix(walkRoot, string(filepath.Separator)) {
		walkRoot += string(filepath.Separator)
	}

	return filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is not fatal for a watcher.
			if !isRoot && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		path = filepath.Clean(path)
		if (path != filepath.Clean(walkRoot) || !isRoot) && w.ignore.match(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Trace("👀 Watching", "dir", path)
		return nil
	})
}

// Run blocks until ctx is done or Close is called, invoking handler from a
// single goroutine with each debounced batch of changes.
func (w *Watcher) Run(ctx context.Context, handler ChangeHandler) error {
	defer w.Close()

	var (
		pending []string
		timer   *time.Timer
		fire    <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name, false); err != nil {
						w.logger.Warn("⚠️ Failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			w.logger.Trace("📝 Change", "path", event.Name, "op", event.Op.String())
			pending = append(pending, event.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			batch := pending
			pending = nil
			fire = nil
			w.logger.Debug("🔔 Asset directories changed", "changes", len(batch))
			handler(batch)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("⚠️ Watcher error", "error", err)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
