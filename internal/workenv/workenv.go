// Package workenv lays out the folders piceval works in. Nothing here runs
// implicitly; the command line calls Init once and hands the resulting paths
// to the components.
package workenv

import (
	"fmt"
	"os"

	"github.com/provide-io/piceval/internal/config"
)

// DirectorySpec specifies a directory to create
type DirectorySpec struct {
	Role string
	Path string
	Mode os.FileMode
}

// Layout returns the directories a configuration needs, in creation order.
// Level directories are not listed; the evaluator owns those.
func Layout(cfg *config.Config) []DirectorySpec {
	mode := cfg.DirPerm()
	specs := make([]DirectorySpec, 0, len(cfg.AssetDirs)+4)
	specs = append(specs, DirectorySpec{Role: "data", Path: cfg.DataDir, Mode: mode})
	for _, dir := range cfg.AssetDirs {
		specs = append(specs, DirectorySpec{Role: "asset", Path: dir, Mode: mode})
	}
	specs = append(specs,
		DirectorySpec{Role: "cache", Path: cfg.CacheDir, Mode: mode},
		DirectorySpec{Role: "store", Path: cfg.StoreDir, Mode: mode},
		DirectorySpec{Role: "recycle", Path: cfg.RecycleDir, Mode: mode},
	)
	return specs
}

// Create makes every directory in specs. Existing directories are left as
// they are.
func Create(specs []DirectorySpec) error {
	for _, dir := range specs {
		mode := dir.Mode
		if mode == 0 {
			mode = 0o755
		}
		if err := os.MkdirAll(dir.Path, mode); err != nil {
			return fmt.Errorf("failed to create %s directory %s: %w", dir.Role, dir.Path, err)
		}
	}
	return nil
}

// Init creates the layout for cfg and records the init marker.
func Init(cfg *config.Config, version string) ([]DirectorySpec, error) {
	specs := Layout(cfg)
	if err := Create(specs); err != nil {
		return nil, err
	}
	if err := MarkInitialized(cfg.DataDir, version); err != nil {
		return nil, err
	}
	return specs, nil
}
