//go:build linux

package evaluate

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames src to dest and fails with EEXIST when dest
// exists, in one step. Kernels or filesystems without RENAME_NOREPLACE
// report errNoReplaceUnsupported.
func renameNoReplace(src, dest string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dest, unix.RENAME_NOREPLACE)
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return errNoReplaceUnsupported
	}
	return err
}
