// Package app composes the selector and the evaluator behind one mutex.
// Every exported method runs to completion under that lock, which is what
// makes the unsynchronized components safe to share between the watcher
// goroutine and command handlers.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/piceval/internal/config"
	"github.com/provide-io/piceval/pkg/evaluate"
	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/seal"
	"github.com/provide-io/piceval/pkg/selector"
)

// App owns one Selector and one Evaluator.
type App struct {
	mu        sync.Mutex
	cfg       *config.Config
	selector  *selector.Selector
	evaluator *evaluate.Evaluator
	logger    hclog.Logger
}

// IndexInfo summarizes the index for display.
type IndexInfo struct {
	Files      int
	AssetDirs  []string
	IgnoreDirs []string
	CachePath  string
}

// New builds both components from cfg. Either failing aborts construction.
func New(cfg *config.Config, logger hclog.Logger) (*App, error) {
	logger = logging.OrNull(logger)

	sel, err := selector.New(selector.Options{
		AssetDirs:   cfg.AssetDirs,
		CacheDir:    cfg.CacheDir,
		IgnoreDirs:  cfg.IgnoreDirs,
		Key:         seal.DeriveKey(cfg.CacheKey),
		MaxRebuilds: cfg.MaxRebuilds,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	ev, err := evaluate.New(cfg.StoreDir, cfg.LevelResolution,
		evaluate.WithDirMode(cfg.DirPerm()),
		evaluate.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	return &App{
		cfg:       cfg,
		selector:  sel,
		evaluator: ev,
		logger:    logger.Named("app"),
	}, nil
}

// Pick draws n files, capped at the configured max batch size.
func (a *App) Pick(n int) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n > a.cfg.MaxBatchSize {
		a.logger.Debug("✂️ Capping batch", "requested", n, "max", a.cfg.MaxBatchSize)
	}
	return a.selector.RandomSelectN(n, a.cfg.MaxBatchSize)
}

// Mark files path under score and returns its new location.
func (a *App) Mark(path string, score int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.evaluator.Mark(path, score)
}

// Rebuild re-walks the asset directories.
func (a *App) Rebuild() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.selector.Rebuild()
}

// Info describes the current index.
func (a *App) Info() IndexInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	return IndexInfo{
		Files:      a.selector.AssetSize(),
		AssetDirs:  a.selector.AssetDirs(),
		IgnoreDirs: a.selector.IgnoreDirs(),
		CachePath:  a.selector.CachePath(),
	}
}

// Paths returns a copy of the index.
func (a *App) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.selector.Paths()
}

// Stats returns file counts per level.
func (a *App) Stats() (map[int]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.evaluator.Counts()
}

// Levels returns the level directory names in score order.
func (a *App) Levels() []string {
	return a.evaluator.LevelDirs()
}

// Watch rebuilds the index whenever the asset directories change, until
// ctx is done. onRebuild, when non-nil, is called after each rebuild.
func (a *App) Watch(ctx context.Context, debounce time.Duration, onRebuild func(files int, err error)) error {
	a.mu.Lock()
	w, err := selector.WatchSelector(a.selector, debounce, a.logger)
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to watch asset directories: %w", err)
	}

	a.logger.Info("👀 Watching asset directories", "debounce", debounce)
	return w.Run(ctx, func(changed []string) {
		a.mu.Lock()
		err := a.selector.Rebuild()
		files := a.selector.AssetSize()
		a.mu.Unlock()

		if err != nil {
			a.logger.Error("❌ Rebuild after change failed", "error", err)
		} else {
			a.logger.Info("🗂️ Index rebuilt after change", "changes", len(changed), "files", files)
		}
		if onRebuild != nil {
			onRebuild(files, err)
		}
	})
}
