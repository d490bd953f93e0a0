package seal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := DeriveKey("")

	testCases := []struct {
		name  string
		paths []string
	}{
		{name: "single", paths: []string{"/x/a.png"}},
		{name: "several", paths: []string{"/x/a.png", "/x/sub/b.jpg", "/y/c.gif"}},
		{name: "unicode", paths: []string{"/图片/猫.png", "/emoji/🐈.webp"}},
		{name: "invalid utf8", paths: []string{"/raw/\xff\xfe.bin"}},
		{name: "duplicates kept", paths: []string{"/a", "/a"}},
		{name: "long", paths: []string{"/" + strings.Repeat("d/", 500) + "f"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := Seal(tc.paths, key)
			require.NoError(t, err)
			assert.Equal(t, FormatVersion, blob[0])

			got, ok := Open(blob, key)
			require.True(t, ok)
			assert.Equal(t, tc.paths, got)
		})
	}
}

func TestSealOpenEmpty(t *testing.T) {
	key := DeriveKey("")
	for _, in := range [][]string{nil, {}} {
		blob, err := Seal(in, key)
		require.NoError(t, err)
		got, ok := Open(blob, key)
		require.True(t, ok)
		assert.Empty(t, got)
	}
}

func TestOpenDetectsEveryBitFlip(t *testing.T) {
	key := DeriveKey("")
	blob, err := Seal([]string{"/x/a.png", "/y/b.png"}, key)
	require.NoError(t, err)

	for i := range blob {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit

			got, ok := Open(tampered, key)
			if ok {
				t.Fatalf("flip of byte %d bit %d not detected, got %v", i, bit, got)
			}
			assert.Nil(t, got)
		}
	}
}

func TestOpenRejects(t *testing.T) {
	key := DeriveKey("")
	blob, err := Seal([]string{"/x/a.png"}, key)
	require.NoError(t, err)

	// Valid tag over a payload that is not a string array.
	mapPayload := append([]byte{FormatVersion}, 0xa1, 0x61, 'k', 0x61, 'v')
	wrongShape := append(mapPayload, tag(mapPayload, key)...)

	// Valid tag over a payload with a future format version.
	future := append([]byte(nil), blob[:len(blob)-TagSize]...)
	future[0] = FormatVersion + 1
	futureBlob := append(future, tag(future, key)...)

	testCases := []struct {
		name string
		blob []byte
		key  []byte
	}{
		{name: "nil", blob: nil, key: key},
		{name: "tag only", blob: blob[len(blob)-TagSize:], key: key},
		{name: "truncated", blob: blob[:len(blob)-1], key: key},
		{name: "wrong key", blob: blob, key: DeriveKey("other")},
		{name: "wrong shape", blob: wrongShape, key: key},
		{name: "future version", blob: futureBlob, key: key},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				got, ok := Open(tc.blob, tc.key)
				assert.False(t, ok)
				assert.Nil(t, got)
			})
		})
	}
}

func TestDeriveKey(t *testing.T) {
	assert.Len(t, DeriveKey(""), TagSize)
	assert.Equal(t, DeriveKey(""), DeriveKey(DefaultSecret))
	assert.NotEqual(t, DeriveKey("a"), DeriveKey("b"))
}

func TestFingerprint(t *testing.T) {
	blob, err := Seal([]string{"/x"}, DeriveKey(""))
	require.NoError(t, err)

	fp := Fingerprint(blob)
	assert.True(t, strings.HasPrefix(fp, "hmac-sha256:"))
	assert.Len(t, strings.TrimPrefix(fp, "hmac-sha256:"), TagSize*2)
	assert.Equal(t, "", Fingerprint([]byte{1, 2}))
}

func TestWriteReadFile(t *testing.T) {
	logger := hclog.New(&hclog.LoggerOptions{Name: "seal_test", Level: hclog.Trace})
	key := DeriveKey("test")
	path := filepath.Join(t.TempDir(), "file_index_cache")

	paths, ok, err := ReadFile(path, key, logger)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, paths)

	want := []string{"/x/1", "/x/2"}
	require.NoError(t, WriteFile(path, want, key, logger))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	paths, ok, err = ReadFile(path, key, logger)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, paths)

	// Overwrite leaves no temp files behind.
	require.NoError(t, WriteFile(path, []string{"/x/3"}, key, logger))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadFileTampered(t *testing.T) {
	key := DeriveKey("test")
	path := filepath.Join(t.TempDir(), "file_index_cache")
	require.NoError(t, WriteFile(path, []string{"/x/1"}, key, nil))

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[2] ^= 0xff
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	paths, ok, err := ReadFile(path, key, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, paths)
}
