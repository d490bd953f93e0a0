// Package config handles configuration loading for piceval.
// It supports a YAML config file, environment variables, and defaults
// rooted at the data directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/provide-io/piceval/pkg/errors"
	"github.com/provide-io/piceval/pkg/selector"
	"github.com/provide-io/piceval/pkg/utils/permissions"
)

// Defaults carried over from the chat plugin this tool grew out of.
const (
	DefaultLevelResolution = 10
	DefaultMaxFileSize     = 6 * 1024 * 1024
	DefaultMaxBatchSize    = 7
	DefaultMaxRebuilds     = 3
)

// Config holds the configuration for piceval.
type Config struct {
	DataDir         string   `yaml:"data_dir"`         // Base for the default folders
	AssetDirs       []string `yaml:"asset_dirs"`       // Trees scanned for candidate files
	IgnoreDirs      []string `yaml:"ignore_dirs"`      // Directory names or absolute paths skipped while scanning
	CacheDir        string   `yaml:"cache_dir"`        // Holds the sealed file index
	StoreDir        string   `yaml:"store_dir"`        // Holds level1..levelN
	RecycleDir      string   `yaml:"recycle_dir"`      // Created at init for removed files
	LevelResolution int      `yaml:"level_resolution"` // Number of level directories, 1-100
	MaxBatchSize    int      `yaml:"max_batch_size"`   // Upper bound for one pick request
	MaxFileSize     int64    `yaml:"max_file_size"`    // Bytes; consumed by external compression only
	MaxRebuilds     int      `yaml:"max_rebuilds"`     // Index rebuilds allowed per pick
	CacheKey        string   `yaml:"cache_key"`        // Secret for the index MAC; empty uses the built-in one
	DirMode         string   `yaml:"dir_mode"`         // Octal mode for created directories
}

// Load reads the YAML file at path (a missing file is fine), applies
// environment overrides, fills folder defaults and validates the result.
// Numeric settings start at their defaults, so an explicit zero in the file
// or environment is kept and rejected by Validate.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LevelResolution: DefaultLevelResolution,
		MaxBatchSize:    DefaultMaxBatchSize,
		MaxFileSize:     DefaultMaxFileSize,
		MaxRebuilds:     DefaultMaxRebuilds,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", perrors.ErrInvalidConfig, path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills empty folder fields. Folder defaults live under DataDir.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if len(cfg.AssetDirs) == 0 {
		cfg.AssetDirs = []string{filepath.Join(cfg.DataDir, "asset")}
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = filepath.Join(cfg.DataDir, "store")
	}
	if cfg.RecycleDir == "" {
		cfg.RecycleDir = filepath.Join(cfg.DataDir, "recycled")
	}
}

// applyEnvOverrides overrides config values with PICEVAL_* environment
// variables. List values are separated by the OS path list separator.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PICEVAL_DATA_DIR"); val != "" {
		cfg.DataDir = val
	}
	if val := os.Getenv("PICEVAL_ASSET_DIRS"); val != "" {
		cfg.AssetDirs = splitList(val)
	}
	if val := os.Getenv("PICEVAL_IGNORE_DIRS"); val != "" {
		cfg.IgnoreDirs = splitList(val)
	}
	if val := os.Getenv("PICEVAL_CACHE_DIR"); val != "" {
		cfg.CacheDir = val
	}
	if val := os.Getenv("PICEVAL_STORE_DIR"); val != "" {
		cfg.StoreDir = val
	}
	if val := os.Getenv("PICEVAL_RECYCLE_DIR"); val != "" {
		cfg.RecycleDir = val
	}
	if val := os.Getenv("PICEVAL_CACHE_KEY"); val != "" {
		cfg.CacheKey = val
	}
	if val := os.Getenv("PICEVAL_DIR_MODE"); val != "" {
		cfg.DirMode = val
	}
	setInt(&cfg.LevelResolution, "PICEVAL_LEVEL_RESOLUTION")
	setInt(&cfg.MaxBatchSize, "PICEVAL_MAX_BATCH_SIZE")
	setInt(&cfg.MaxRebuilds, "PICEVAL_MAX_REBUILDS")
	if val := os.Getenv("PICEVAL_MAX_FILE_SIZE"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.MaxFileSize = n
		}
	}
}

func setInt(dst *int, env string) {
	if val := os.Getenv(env); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, string(os.PathListSeparator)) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks ranges. Directory existence is left to the components
// that own those directories.
func (c *Config) Validate() error {
	if c.LevelResolution < 1 || c.LevelResolution > 100 {
		return fmt.Errorf("%w: level_resolution %d not in [1, 100]", perrors.ErrInvalidConfig, c.LevelResolution)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("%w: max_batch_size must be positive", perrors.ErrInvalidConfig)
	}
	if c.MaxFileSize < 1 {
		return fmt.Errorf("%w: max_file_size must be positive", perrors.ErrInvalidConfig)
	}
	if c.MaxRebuilds < 1 {
		return fmt.Errorf("%w: max_rebuilds must be positive", perrors.ErrInvalidConfig)
	}
	if _, err := permissions.ParseDirMode(c.DirMode); err != nil {
		return fmt.Errorf("%w: dir_mode: %v", perrors.ErrInvalidConfig, err)
	}
	return selector.CheckIgnoreDirs(c.IgnoreDirs)
}

// DirPerm returns the parsed directory mode.
func (c *Config) DirPerm() os.FileMode {
	mode, _ := permissions.ParseDirMode(c.DirMode)
	return mode
}

// DefaultDataDir returns the platform data directory, honoring
// PICEVAL_HOME and XDG_DATA_HOME.
func DefaultDataDir() string {
	if home := os.Getenv("PICEVAL_HOME"); home != "" {
		return home
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "piceval")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "piceval")
	}
	return filepath.Join(os.TempDir(), "piceval")
}

// DefaultConfigPath returns the config file location used when --config is
// not given.
func DefaultConfigPath() string {
	if path := os.Getenv("PICEVAL_CONFIG"); path != "" {
		return path
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "piceval", "config.yaml")
	}
	return ""
}
