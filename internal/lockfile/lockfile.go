// Package lockfile keeps two Jeeves processes from serving the same state directory.
//
// The lock is an flock on a file in the directory, so the kernel drops it when the
// process exits, cleanly or not.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "jeeves.lock"

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the exclusive lock on stateDir, creating the directory if needed.
// label is written into the lock file for operators (e.g. the chat platform).
// If another process holds the lock a *LockError is returned.
func AcquireLock(stateDir, label string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Attempting to acquire lock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory for lock", "error", err, "state_dir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		slog.Error("Failed to open lock file", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("Failed to acquire lock, another Jeeves instance is running", "lock_path", lockPath, "holder", holder)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	// Only truncate once we own the lock so a loser never wipes the holder's info.
	info := formatInfo(os.Getpid(), label, time.Now())
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(info), 0)
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		slog.Error("Failed to write lock information", "error", err, "lock_path", lockPath)
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err, "lock_path", lockPath)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Release drops the lock and removes the file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Failed to release flock", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("Failed to close lock file", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove lock file", "error", err, "lock_path", l.path)
	}
	l.file = nil
	slog.Info("Released state directory lock", "lock_path", l.path)
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// LockError reports a lock held by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another Jeeves instance is already running with this state directory (lock file %s", e.LockPath)
	if e.Holder != "" {
		msg += ", holder " + e.Holder
	}
	return msg + "); if no such process exists, remove the lock file and retry"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

func formatInfo(pid int, label string, started time.Time) string {
	return fmt.Sprintf("pid=%d\nlabel=%s\nstarted=%s\n", pid, label, started.UTC().Format(time.RFC3339))
}

// describeHolder summarizes the lock file's owner for error messages.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	fields := parseInfo(string(data))
	pid, _ := strconv.Atoi(fields["pid"])
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	state := "not running, stale lock"
	if isProcessRunning(pid) {
		state = "running"
	}
	desc := fmt.Sprintf("PID %d (%s)", pid, state)
	if label := fields["label"]; label != "" {
		desc += " " + label
	}
	return desc
}

func parseInfo(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			fields[k] = v
		}
	}
	return fields
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
