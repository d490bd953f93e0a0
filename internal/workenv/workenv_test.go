package workenv

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/piceval/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	data := t.TempDir()
	return &config.Config{
		DataDir:    data,
		AssetDirs:  []string{filepath.Join(data, "a"), filepath.Join(data, "b")},
		CacheDir:   filepath.Join(data, "cache"),
		StoreDir:   filepath.Join(data, "store"),
		RecycleDir: filepath.Join(data, "recycled"),
		DirMode:    "0750",
	}
}

func TestLayout(t *testing.T) {
	cfg := testConfig(t)
	specs := Layout(cfg)

	roles := make([]string, len(specs))
	for i, s := range specs {
		roles[i] = s.Role
		assert.Equal(t, os.FileMode(0o750), s.Mode)
	}
	assert.Equal(t, []string{"data", "asset", "asset", "cache", "store", "recycle"}, roles)
}

func TestInit(t *testing.T) {
	cfg := testConfig(t)

	specs, err := Init(cfg, "1.2.3")
	require.NoError(t, err)
	for _, s := range specs {
		assert.DirExists(t, s.Path)
	}

	marker := ReadMarker(cfg.DataDir)
	require.NotNil(t, marker)
	assert.Equal(t, "1.2.3", marker.Version)
	assert.WithinDuration(t, time.Now(), marker.Timestamp, time.Minute)

	// Idempotent.
	_, err = Init(cfg, "1.2.4")
	require.NoError(t, err)
	assert.Equal(t, "1.2.4", ReadMarker(cfg.DataDir).Version)
}

func TestCreate_Failure(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	err := Create([]DirectorySpec{{Role: "cache", Path: filepath.Join(blocker, "sub")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache directory")
}

func TestReadMarker_Missing(t *testing.T) {
	assert.Nil(t, ReadMarker(t.TempDir()))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MarkerFile), []byte("{"), 0o600))
	assert.Nil(t, ReadMarker(dir))
}
