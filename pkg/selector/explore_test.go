package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/provide-io/piceval/pkg/errors"
)

func TestExplore(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "b.png", "a/x.png", "a/skip/y.png", "c/skip/z.png", "c/w.png")

	testCases := []struct {
		name   string
		ignore []string
		want   []string
	}{
		{
			name: "everything",
			want: []string{"a/skip/y.png", "a/x.png", "b.png", "c/skip/z.png", "c/w.png"},
		},
		{
			name:   "ignore by name at any depth",
			ignore: []string{"skip"},
			want:   []string{"a/x.png", "b.png", "c/w.png"},
		},
		{
			name:   "ignore by absolute path",
			ignore: []string{filepath.Join(root, "a", "skip")},
			want:   []string{"a/x.png", "b.png", "c/skip/z.png", "c/w.png"},
		},
		{
			name:   "file names are not matched",
			ignore: []string{"b.png", ""},
			want:   []string{"a/skip/y.png", "a/x.png", "b.png", "c/skip/z.png", "c/w.png"},
		},
		{
			name:   "root named in ignore list is still walked",
			ignore: []string{filepath.Base(root)},
			want:   []string{"a/skip/y.png", "a/x.png", "b.png", "c/skip/z.png", "c/w.png"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Explore(root, tc.ignore)
			require.NoError(t, err)

			want := make([]string, len(tc.want))
			for i, rel := range tc.want {
				want[i] = filepath.Join(root, filepath.FromSlash(rel))
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestExplore_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := writeFiles(t, root, "real.png")[0]
	if err := os.Symlink(target, filepath.Join(root, "link.png")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Explore(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{target}, got)
}

func TestExplore_FollowsSymlinkedRoot(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "real")
	writeFiles(t, target, "a.png", "skip/b.png", "sub/c.png")
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := Explore(link, []string{filepath.Join(link, "skip")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(link, "a.png"),
		filepath.Join(link, "sub", "c.png"),
	}, got)
}

func TestCheckIgnoreDirs(t *testing.T) {
	require.NoError(t, CheckIgnoreDirs([]string{"thumbs", ".git", "thumbs/", "", filepath.Join(t.TempDir(), "a", "b")}))
	require.ErrorIs(t, CheckIgnoreDirs([]string{"a/thumbs"}), perrors.ErrInvalidConfig)
}

func TestExplore_MissingRoot(t *testing.T) {
	_, err := Explore(filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
