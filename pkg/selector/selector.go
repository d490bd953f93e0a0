// Package selector maintains the file index over the asset directories and
// serves random picks from it.
//
// The index is cached on disk as a sealed blob (see package seal) and is
// rebuilt in full whenever the cache is missing, fails verification, belongs
// to a different set of asset directories, or a pick lands on a file that no
// longer exists.
//
// A Selector is not safe for concurrent use; callers serialize access.
package selector

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	perrors "github.com/provide-io/piceval/pkg/errors"
	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/seal"
	"github.com/provide-io/piceval/pkg/utils/permissions"
)

const (
	// CacheFileName is the sealed index file inside the cache directory.
	CacheFileName = "file_index_cache"

	// DefaultMaxRebuilds bounds how many times one pick may rebuild the index
	// before giving up.
	DefaultMaxRebuilds = 3
)

// Options configures a Selector.
type Options struct {
	AssetDirs  []string
	CacheDir   string
	IgnoreDirs []string

	// Key authenticates the cache file. Nil selects seal.DeriveKey("").
	Key []byte

	// MaxRebuilds defaults to DefaultMaxRebuilds when zero.
	MaxRebuilds int

	// IntN returns a uniform integer in [0, n). Defaults to math/rand.
	IntN func(n int) int

	Logger hclog.Logger
}

// Selector owns the in-memory file index.
type Selector struct {
	assetDirs   []string
	cacheDir    string
	ignoreDirs  []string
	key         []byte
	maxRebuilds int
	intN        func(n int) int
	logger      hclog.Logger

	index []string
}

// New validates the asset directories, loads the cached index when it is
// valid for them, and rebuilds it otherwise. It fails if any asset
// directory is missing or if no files are found.
func New(opts Options) (*Selector, error) {
	logger := logging.OrNull(opts.Logger).Named("selector")

	if len(opts.AssetDirs) == 0 {
		return nil, fmt.Errorf("%w: no asset directories configured", perrors.ErrInvalidConfig)
	}
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("%w: no cache directory configured", perrors.ErrInvalidConfig)
	}
	if err := CheckIgnoreDirs(opts.IgnoreDirs); err != nil {
		return nil, err
	}

	assetDirs := make([]string, 0, len(opts.AssetDirs))
	for _, dir := range opts.AssetDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve asset directory %s: %w", dir, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", perrors.ErrAssetDirMissing, abs)
		}
		assetDirs = append(assetDirs, abs)
	}

	if err := os.MkdirAll(opts.CacheDir, permissions.DefaultDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	s := &Selector{
		assetDirs:   assetDirs,
		cacheDir:    opts.CacheDir,
		ignoreDirs:  append([]string(nil), opts.IgnoreDirs...),
		key:         opts.Key,
		maxRebuilds: opts.MaxRebuilds,
		intN:        opts.IntN,
		logger:      logger,
	}
	if s.key == nil {
		s.key = seal.DeriveKey("")
	}
	if s.maxRebuilds <= 0 {
		s.maxRebuilds = DefaultMaxRebuilds
	}
	if s.intN == nil {
		s.intN = rand.Intn
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	if len(s.index) == 0 {
		return nil, fmt.Errorf("%w: %s", perrors.ErrEmptyIndex, strings.Join(s.assetDirs, ", "))
	}

	logger.Info("📚 Index ready", "files", len(s.index))
	return s, nil
}

func (s *Selector) load() error {
	cached, ok, err := seal.ReadFile(s.CachePath(), s.key, s.logger)
	if err != nil {
		return err
	}

	switch {
	case !ok:
		s.logger.Debug("🔄 No usable cache, rebuilding")
	case len(cached) == 0:
		s.logger.Debug("🔄 Cached index is empty, rebuilding")
	case !s.underAssetDir(cached[0]):
		s.logger.Info("🔄 Cached index belongs to other asset directories, rebuilding", "first", cached[0])
	default:
		s.index = cached
		s.logger.Debug("📥 Loaded index from cache", "files", len(cached))
		return nil
	}

	return s.Rebuild()
}

// Rebuild walks every asset directory and replaces the index and the cache
// file. On failure the previous index stays in place.
func (s *Selector) Rebuild() error {
	perRoot := make([][]string, len(s.assetDirs))

	var g errgroup.Group
	for i, dir := range s.assetDirs {
		i, dir := i, dir
		g.Go(func() error {
			files, err := Explore(dir, s.ignoreDirs)
			if err != nil {
				return fmt.Errorf("failed to walk asset directory %s: %w", dir, err)
			}
			perRoot[i] = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, files := range perRoot {
		total += len(files)
	}
	index := make([]string, 0, total)
	for _, files := range perRoot {
		index = append(index, files...)
	}

	if err := seal.WriteFile(s.CachePath(), index, s.key, s.logger); err != nil {
		return err
	}

	s.index = index
	s.logger.Debug("🗂️ Rebuilt index", "files", len(index), "roots", len(s.assetDirs))
	return nil
}

// RandomSelect returns a uniformly drawn path that exists on disk. When the
// drawn path is gone the index is rebuilt and drawn from again, at most
// MaxRebuilds times.
func (s *Selector) RandomSelect() (string, error) {
	for rebuilds := 0; ; rebuilds++ {
		if len(s.index) > 0 {
			selected := s.index[s.intN(len(s.index))]
			if _, err := os.Stat(selected); err == nil {
				return selected, nil
			} else if !isGone(err) {
				return "", fmt.Errorf("failed to stat %s: %w", selected, err)
			}
			s.logger.Debug("🧹 Selected file is gone", "path", selected)
		}

		if rebuilds == s.maxRebuilds {
			return "", fmt.Errorf("%w (rebuilt %d times, %d entries)", perrors.ErrSelectionExhausted, rebuilds, len(s.index))
		}
		if err := s.Rebuild(); err != nil {
			return "", err
		}
	}
}

// RandomSelectN draws n paths, capped at limit when limit is positive.
// A non-positive n draws one. Draws are independent and may repeat.
func (s *Selector) RandomSelectN(n, limit int) ([]string, error) {
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}

	picks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.RandomSelect()
		if err != nil {
			return picks, err
		}
		picks = append(picks, p)
	}
	return picks, nil
}

// AssetSize returns the number of indexed paths without touching the disk.
func (s *Selector) AssetSize() int {
	return len(s.index)
}

// Paths returns a copy of the index.
func (s *Selector) Paths() []string {
	return append([]string(nil), s.index...)
}

// AssetDirs returns the absolute asset directories in configured order.
func (s *Selector) AssetDirs() []string {
	return append([]string(nil), s.assetDirs...)
}

// IgnoreDirs returns the configured ignore list.
func (s *Selector) IgnoreDirs() []string {
	return append([]string(nil), s.ignoreDirs...)
}

// CachePath returns the location of the sealed index.
func (s *Selector) CachePath() string {
	return filepath.Join(s.cacheDir, CacheFileName)
}

// isGone reports whether a stat error means the path no longer resolves to
// a file, including when a parent directory was replaced by a file.
func isGone(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (s *Selector) underAssetDir(path string) bool {
	for _, dir := range s.assetDirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
