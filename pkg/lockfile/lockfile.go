// Package lockfile serializes piceval processes that share a cache
// directory. The lock is a file holding the owner's PID; a lock left by a
// dead process is reclaimed.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	perrors "github.com/provide-io/piceval/pkg/errors"
	"github.com/provide-io/piceval/pkg/logging"
)

// DefaultPollInterval is how often Acquire retries a held lock.
const DefaultPollInterval = 100 * time.Millisecond

// Lock is a held lock file.
type Lock struct {
	path   string
	logger hclog.Logger
}

// IsProcessRunning checks if a process with given PID is still running
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, Signal(0) checks if process exists without actually sending a signal
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// TryAcquire takes the lock at path without waiting. It returns
// ErrLocked when a live process holds it.
func TryAcquire(path string, logger hclog.Logger) (*Lock, error) {
	logger = logging.OrNull(logger)

	if data, err := os.ReadFile(path); err == nil {
		contents := strings.TrimSpace(string(data))
		oldPid, perr := strconv.Atoi(contents)
		switch {
		case perr != nil:
			logger.Info("🧹 Removing invalid lock file (couldn't parse PID)", "path", path)
			os.Remove(path)
		case oldPid == os.Getpid():
			return nil, fmt.Errorf("%w: already held by this process", perrors.ErrLocked)
		case !IsProcessRunning(oldPid):
			logger.Info("🧹 Removing stale lock from dead process", "pid", oldPid)
			os.Remove(path)
		default:
			logger.Debug("🔒 Lock held by active process", "pid", oldPid)
			return nil, fmt.Errorf("%w (pid %d)", perrors.ErrLocked, oldPid)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			logger.Debug("🔒 Lost the race for the lock file")
			return nil, perrors.ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Debug("🔒 Acquired lock", "path", path, "pid", os.Getpid())
	return &Lock{path: path, logger: logger}, nil
}

// Acquire waits for the lock until ctx is done.
func Acquire(ctx context.Context, path string, poll time.Duration, logger hclog.Logger) (*Lock, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger = logging.OrNull(logger)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		lock, err := TryAcquire(path, logger)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, perrors.ErrLocked) {
			return nil, err
		}
		if attempt%10 == 0 {
			logger.Debug("⏳ Waiting for lock...", "path", path, "attempt", attempt)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: gave up waiting for %s: %v", perrors.ErrLocked, path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release removes the lock file.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil {
		l.logger.Debug("⚠️ Failed to remove lock file", "error", err)
		return
	}
	l.logger.Debug("🔓 Released lock", "path", l.path)
}
