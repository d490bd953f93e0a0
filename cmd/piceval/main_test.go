package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/provide-io/piceval/pkg/errors"
)

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), err
}

// setupDataDir writes a config rooted at a temp data dir and returns the
// config path and the data dir.
func setupDataDir(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("PICEVAL_LOG_LEVEL", "error")
	t.Setenv("PICEVAL_JSON_LOG", "")

	data := t.TempDir()
	cfgPath := filepath.Join(data, "config.yaml")
	content := fmt.Sprintf("data_dir: %s\nlevel_resolution: 3\nmax_batch_size: 2\n", data)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, data
}

func TestExitCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "config", err: fmt.Errorf("wrap: %w", perrors.ErrAssetDirMissing), want: ExitConfigError},
		{name: "empty index", err: perrors.ErrEmptyIndex, want: ExitConfigError},
		{name: "score", err: perrors.ErrScoreOutOfRange, want: ExitRejected},
		{name: "collision", err: perrors.ErrDestinationExists, want: ExitRejected},
		{name: "usage", err: fmt.Errorf("%w: bad", errUsage), want: ExitRejected},
		{name: "locked", err: perrors.ErrLocked, want: ExitLocked},
		{name: "missing file", err: fmt.Errorf("move: %w", os.ErrNotExist), want: ExitIOError},
		{name: "other", err: errors.New("boom"), want: ExitFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, exitCode(tc.err))
		})
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := runCmd(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "piceval "+version)
}

func TestInitPickMarkStats(t *testing.T) {
	cfgPath, data := setupDataDir(t)

	out, err := runCmd(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(data, "asset"))
	assert.DirExists(t, filepath.Join(data, "store"))
	assert.FileExists(t, filepath.Join(data, ".piceval.init"))

	src := filepath.Join(data, "asset", "cat.png")
	require.NoError(t, os.WriteFile(src, []byte("meow"), 0o644))

	out, err = runCmd(t, "--config", cfgPath, "pick")
	require.NoError(t, err)
	assert.Equal(t, src, strings.TrimSpace(out))

	_, err = runCmd(t, "--config", cfgPath, "mark", src, "9")
	require.ErrorIs(t, err, perrors.ErrScoreOutOfRange)
	assert.FileExists(t, src)

	_, err = runCmd(t, "--config", cfgPath, "mark", src, "two")
	require.ErrorIs(t, err, errUsage)

	out, err = runCmd(t, "--config", cfgPath, "mark", src, "2")
	require.NoError(t, err)
	dest := filepath.Join(data, "store", "level2", "cat.png")
	assert.Contains(t, out, dest)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, src)

	assert.DirExists(t, filepath.Join(data, "store", "level3"))

	out, err = runCmd(t, "--config", cfgPath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total    1")
}

func TestPick_RejectsBadCount(t *testing.T) {
	cfgPath, _ := setupDataDir(t)

	_, err := runCmd(t, "--config", cfgPath, "pick", "0")
	require.ErrorIs(t, err, errUsage)
	assert.Equal(t, ExitRejected, exitCode(err))
}

func TestPick_EmptyAssetsIsConfigError(t *testing.T) {
	cfgPath, _ := setupDataDir(t)

	_, err := runCmd(t, "--config", cfgPath, "init")
	require.NoError(t, err)

	_, err = runCmd(t, "--config", cfgPath, "pick")
	require.ErrorIs(t, err, perrors.ErrEmptyIndex)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestIndexAndVerify(t *testing.T) {
	cfgPath, data := setupDataDir(t)

	_, err := runCmd(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	for _, name := range []string{"a.png", "b.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(data, "asset", name), []byte(name), 0o644))
	}

	out, err := runCmd(t, "--config", cfgPath, "index", "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 files")

	out, err = runCmd(t, "--config", cfgPath, "index", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(data, "asset", "a.png"),
		filepath.Join(data, "asset", "b.png"),
	}, strings.Fields(out))

	out, err = runCmd(t, "--config", cfgPath, "index", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Files:   2")
	assert.Contains(t, out, "Asset:   "+filepath.Join(data, "asset"))

	require.NoError(t, os.Remove(filepath.Join(data, "asset", "b.png")))

	out, err = runCmd(t, "--config", cfgPath, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "hmac-sha256:")
	assert.Contains(t, out, "missing: 1")

	cache := filepath.Join(data, "cache", "file_index_cache")
	blob, err := os.ReadFile(cache)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	require.NoError(t, os.WriteFile(cache, blob, 0o600))

	_, err = runCmd(t, "--config", cfgPath, "verify")
	require.Error(t, err)
}

func TestInvalidConfigFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("level_resolution: 500\n"), 0o600))

	_, err := runCmd(t, "--config", cfgPath, "stats")
	require.ErrorIs(t, err, perrors.ErrInvalidConfig)
	assert.Equal(t, ExitConfigError, exitCode(err))
}
