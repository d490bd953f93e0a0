package seal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/utils/permissions"
)

// WriteFile seals paths and replaces the file at path. The blob is written
// to a sibling temp file first so readers never observe a partial cache.
func WriteFile(path string, paths []string, key []byte, logger hclog.Logger) error {
	logger = logging.OrNull(logger)

	blob, err := Seal(paths, key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(blob); err != nil {
		cleanup()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Chmod(tmpPath, os.FileMode(permissions.DefaultFilePerms)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	logger.Debug("💾 Saved sealed index", "path", path, "entries", len(paths), "bytes", len(blob))
	return nil
}

// ReadFile loads and opens the sealed index at path.
//
// A missing file yields ok=false with a nil error. A blob that fails
// verification is logged as a warning and also yields ok=false, so the
// caller rebuilds instead of failing. Only other I/O errors are returned.
func ReadFile(path string, key []byte, logger hclog.Logger) (paths []string, ok bool, err error) {
	logger = logging.OrNull(logger)

	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("🔍 No cached index found", "path", path)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache file: %w", err)
	}

	paths, ok = Open(blob, key)
	if !ok {
		logger.Warn("⚠️ Invalid signature on cached index, ignoring it", "path", path, "bytes", len(blob))
		return nil, false, nil
	}

	logger.Debug("✅ Cached index verified", "path", path, "entries", len(paths))
	return paths, true, nil
}
