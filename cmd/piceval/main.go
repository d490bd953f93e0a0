package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	perrors "github.com/provide-io/piceval/pkg/errors"
)

const version = "0.1.0"

// Exit codes
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitRejected    = 3
	ExitIOError     = 4
	ExitLocked      = 5
	ExitPanic       = 101
)

func getBuildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	// Fallback to binary modification time
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, perrors.ErrInvalidConfig),
		errors.Is(err, perrors.ErrAssetDirMissing),
		errors.Is(err, perrors.ErrEmptyIndex),
		errors.Is(err, perrors.ErrInvalidLevelResolution),
		errors.Is(err, perrors.ErrStoreContentMismatch):
		return ExitConfigError
	case errors.Is(err, perrors.ErrScoreOutOfRange),
		errors.Is(err, perrors.ErrDestinationExists),
		errors.Is(err, errUsage):
		return ExitRejected
	case errors.Is(err, perrors.ErrLocked):
		return ExitLocked
	case errors.Is(err, os.ErrNotExist),
		errors.Is(err, os.ErrPermission):
		return ExitIOError
	default:
		return ExitFailure
	}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(ExitPanic)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
