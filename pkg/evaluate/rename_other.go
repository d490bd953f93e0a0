//go:build !linux

package evaluate

func renameNoReplace(src, dest string) error {
	return errNoReplaceUnsupported
}
