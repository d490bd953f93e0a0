package selector

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	perrors "github.com/provide-io/piceval/pkg/errors"
)

// Explore returns every regular file under root in lexical walk order.
// Directories whose base name or cleaned path appears in ignore are skipped
// along with everything beneath them. The root itself is never skipped.
// A symlinked root is followed, but returned paths keep the root as given.
// Symlinks below the root and other non-regular entries are not followed or
// returned.
func Explore(root string, ignore []string) ([]string, error) {
	skip := newIgnoreSet(ignore)

	root = filepath.Clean(root)
	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		path = root + path[len(walkRoot):]
		if d.IsDir() {
			if path != root && skip.match(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// CheckIgnoreDirs rejects entries that can never match: relative entries
// are compared with directory base names only, so they may not contain a
// separator. Use an absolute path to ignore one specific directory.
func CheckIgnoreDirs(ignore []string) error {
	for _, entry := range ignore {
		if entry == "" || filepath.IsAbs(entry) {
			continue
		}
		if strings.Contains(filepath.ToSlash(filepath.Clean(entry)), "/") {
			return fmt.Errorf("%w: ignore entry %q must be a directory name or an absolute path", perrors.ErrInvalidConfig, entry)
		}
	}
	return nil
}

type ignoreSet struct {
	names map[string]struct{}
	paths map[string]struct{}
}

func newIgnoreSet(ignore []string) ignoreSet {
	s := ignoreSet{
		names: make(map[string]struct{}, len(ignore)),
		paths: make(map[string]struct{}),
	}
	for _, entry := range ignore {
		if entry == "" {
			continue
		}
		if filepath.IsAbs(entry) {
			s.paths[filepath.Clean(entry)] = struct{}{}
			continue
		}
		s.names[filepath.Clean(entry)] = struct{}{}
	}
	return s
}

func (s ignoreSet) match(dir string) bool {
	if _, ok := s.names[filepath.Base(dir)]; ok {
		return true
	}
	_, ok := s.paths[filepath.Clean(dir)]
	return ok
}
