package app

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/piceval/pkg/logging"
	"github.com/provide-io/piceval/pkg/seal"
)

// CacheReport is the outcome of verifying a cache file without rebuilding.
type CacheReport struct {
	Path        string
	Bytes       int
	Fingerprint string
	Valid       bool
	Entries     int
	Missing     []string
}

// VerifyCache checks the sealed index at path and reports how many entries
// are stale. It never rewrites the cache.
func VerifyCache(path string, key []byte, logger hclog.Logger) (*CacheReport, error) {
	logger = logging.OrNull(logger)

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	report := &CacheReport{
		Path:        path,
		Bytes:       len(blob),
		Fingerprint: seal.Fingerprint(blob),
	}

	paths, ok := seal.Open(blob, key)
	if !ok {
		logger.Error("✗ Cache signature invalid", "path", path)
		return report, nil
	}
	report.Valid = true
	report.Entries = len(paths)
	logger.Info("✓ Cache signature valid", "entries", len(paths))

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			report.Missing = append(report.Missing, p)
		}
	}
	if len(report.Missing) > 0 {
		logger.Warn("⚠️ Cache has stale entries", "missing", len(report.Missing))
	}
	return report, nil
}
