// Package permissions provides utilities for parsing and handling file permissions
package permissions

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default permission constants (user-only access for security)
const (
	DefaultFilePerms = 0o600 // Read/write for owner only
	DefaultDirPerms  = 0o700 // Read/write/execute for owner only
)

// ParseDirMode parses an octal mode string such as "755", "0755" or "0o755".
// An empty string yields DefaultDirPerms.
func ParseDirMode(s string) (os.FileMode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultDirPerms, nil
	}

	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0")
	if digits == "" {
		digits = "0"
	}

	val, err := strconv.ParseUint(digits, 8, 32)
	if err != nil || val > 0o777 {
		return DefaultDirPerms, fmt.Errorf("invalid permission string %q", s)
	}

	mode := os.FileMode(val)
	if !IsTraversable(mode) {
		return DefaultDirPerms, fmt.Errorf("directory mode %s lacks owner execute bit", FormatOctal(mode))
	}
	return mode, nil
}

// FormatOctal formats a permission value as an octal string
func FormatOctal(mode os.FileMode) string {
	return fmt.Sprintf("0%o", mode.Perm())
}

// IsTraversable reports whether the owner can enter a directory with mode.
func IsTraversable(mode os.FileMode) bool {
	return mode&0o100 != 0
}
