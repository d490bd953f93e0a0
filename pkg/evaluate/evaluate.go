// Package evaluate files scored assets into per-level directories under a
// store root. The store root is owned exclusively by the Evaluator: it may
// hold only level1..levelN.
//
// An Evaluator is not safe for concurrent use; callers serialize access.
package evaluate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	perrors "github.com/provide-io/piceval/pkg/errors"
	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/utils/permissions"
)

const (
	// LevelPrefix names level directories: level1, level2, ...
	LevelPrefix = "level"

	MinLevelResolution = 1
	MaxLevelResolution = 100
)

// Evaluator moves files into the level directory matching their score.
type Evaluator struct {
	storeDir  string
	levelDirs []string
	dirMode   os.FileMode
	logger    hclog.Logger
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithDirMode sets the mode used when creating level directories.
func WithDirMode(mode os.FileMode) Option {
	return func(e *Evaluator) { e.dirMode = mode }
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// LevelDirName returns the directory name for level n.
func LevelDirName(n int) string {
	return LevelPrefix + strconv.Itoa(n)
}

// New validates the store root and ensures all level directories exist.
// It fails when levelResolution is outside [1, 100] or when the store root
// contains a directory that is not one of the expected level directories.
func New(storeDir string, levelResolution int, opts ...Option) (*Evaluator, error) {
	if levelResolution < MinLevelResolution || levelResolution > MaxLevelResolution {
		return nil, fmt.Errorf("%w: got %d", perrors.ErrInvalidLevelResolution, levelResolution)
	}
	if storeDir == "" {
		return nil, fmt.Errorf("%w: no store directory configured", perrors.ErrInvalidConfig)
	}

	e := &Evaluator{
		storeDir: storeDir,
		dirMode:  permissions.DefaultDirPerms,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNull(e.logger).Named("evaluate")

	e.levelDirs = make([]string, levelResolution)
	expected := make(map[string]struct{}, levelResolution)
	for i := range e.levelDirs {
		name := LevelDirName(i + 1)
		e.levelDirs[i] = name
		expected[name] = struct{}{}
	}

	if err := os.MkdirAll(storeDir, e.dirMode); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}
	var unexpected []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, ok := expected[entry.Name()]; !ok {
			unexpected = append(unexpected, entry.Name())
		}
	}
	if len(unexpected) > 0 {
		return nil, fmt.Errorf("%w: %s contains %s", perrors.ErrStoreContentMismatch, storeDir, strings.Join(unexpected, ", "))
	}

	for _, name := range e.levelDirs {
		if err := os.MkdirAll(filepath.Join(storeDir, name), e.dirMode); err != nil {
			return nil, fmt.Errorf("failed to create level directory %s: %w", name, err)
		}
	}

	e.logger.Debug("📂 Store ready", "path", storeDir, "levels", levelResolution)
	return e, nil
}

// Mark moves filePath into the level directory for score, keeping its base
// name, and returns the new path. An out-of-range score or an existing file
// at the destination is rejected before anything is touched.
func (e *Evaluator) Mark(filePath string, score int) (string, error) {
	low, high := e.Bounds()
	if score < low || score > high {
		return "", fmt.Errorf("%w: %d not in [%d, %d]", perrors.ErrScoreOutOfRange, score, low, high)
	}

	targetDir := filepath.Join(e.storeDir, e.levelDirs[score-1])
	if err := os.MkdirAll(targetDir, e.dirMode); err != nil {
		return "", fmt.Errorf("failed to create level directory: %w", err)
	}

	dest := filepath.Join(targetDir, filepath.Base(filePath))
	if err := moveFile(filePath, dest); err != nil {
		return "", err
	}

	e.logger.Info("🏷️ Marked file", "score", score, "from", filePath, "to", dest)
	return dest, nil
}

// Bounds returns the inclusive score range.
func (e *Evaluator) Bounds() (int, int) {
	return MinLevelResolution, len(e.levelDirs)
}

// LevelDirs returns the level directory names in score order.
func (e *Evaluator) LevelDirs() []string {
	return append([]string(nil), e.levelDirs...)
}

// Counts returns the number of regular files in each level directory,
// keyed by score. Missing level directories count as empty.
func (e *Evaluator) Counts() (map[int]int, error) {
	counts := make(map[int]int, len(e.levelDirs))
	for i, name := range e.levelDirs {
		entries, err := os.ReadDir(filepath.Join(e.storeDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				counts[i+1] = 0
				continue
			}
			return nil, fmt.Errorf("failed to read level directory %s: %w", name, err)
		}
		n := 0
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				n++
			}
		}
		counts[i+1] = n
	}
	return counts, nil
}
