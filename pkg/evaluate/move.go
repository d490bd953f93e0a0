package evaluate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	perrors "github.com/provide-io/piceval/pkg/errors"
)

var errNoReplaceUnsupported = errors.New("rename without replace not supported")

// moveFile relocates src to dest. It refuses to replace an existing dest.
// Across filesystems it falls back to copy, sync and remove.
//
// Where renameat2 is unavailable the existence check and the rename are two
// steps, so a dest created in between by another writer is overwritten.
func moveFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source %s is not a regular file", src)
	}

	err = renameNoReplace(src, dest)
	if errors.Is(err, errNoReplaceUnsupported) {
		err = checkAndRename(src, dest)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, perrors.ErrDestinationExists):
		return err
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %s", perrors.ErrDestinationExists, dest)
	case errors.Is(err, syscall.EXDEV):
		return copyAndRemove(src, dest, info.Mode().Perm())
	default:
		return fmt.Errorf("failed to move %s: %w", src, err)
	}
}

func checkAndRename(src, dest string) error {
	// Lstat so a dangling symlink at dest also counts as taken.
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("%w: %s", perrors.ErrDestinationExists, dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat destination: %w", err)
	}
	return os.Rename(src, dest)
}

func copyAndRemove(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	// O_EXCL keeps the no-overwrite guarantee on this path too.
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", perrors.ErrDestinationExists, dest)
		}
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to sync destination: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to close destination: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied to %s but failed to remove source: %w", dest, err)
	}
	return nil
}
