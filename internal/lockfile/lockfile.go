// Package lockfile keeps two MoodMatch sessions from sharing a state directory.
//
// The lock is a flock on a file in the state directory, so the kernel releases it when
// the process exits, however it exits.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory.
const LockFileName = "moodmatch.lock"

// ErrLocked matches a LockError with errors.Is.
var ErrLocked = errors.New("state directory is locked by another session")

// Holder describes the session recorded in a lock file.
type Holder struct {
	PID     int
	Since   time.Time
	Running bool
}

func (h Holder) String() string {
	if h.PID == 0 {
		return "unknown session"
	}
	state := "not running, stale lock"
	if h.Running {
		state = "running"
	}
	if h.Since.IsZero() {
		return fmt.Sprintf("PID %d (%s)", h.PID, state)
	}
	return fmt.Sprintf("PID %d since %s (%s)", h.PID, h.Since.Format(time.RFC3339), state)
}

// Lock is a held session lock.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the session lock in stateDir, creating the directory if needed.
// It fails immediately with a *LockError when another process holds the lock.
func AcquireLock(stateDir string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("lockfile.AcquireLock", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// No O_TRUNC: the current holder's details must survive a failed attempt.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := ReadHolder(lockPath)
		slog.Warn("lockfile.AcquireLock: state directory in use", "lock_path", lockPath, "holder", holder.String())
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	if err := writeHolder(file); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Debug("lockfile.AcquireLock succeeded", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

func writeHolder(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\nsince=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Path is the lock file location.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. Calling it more than once is safe.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Release: unlock failed", "error", err, "lock_path", l.path)
	}
	if err := l.file.Close(); err != nil {
		slog.Error("lockfile.Release: close failed", "error", err, "lock_path", l.path)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("lockfile.Release: remove failed", "error", err, "lock_path", l.path)
	}
	l.file = nil
	slog.Debug("lockfile.Release succeeded", "lock_path", l.path)
	return nil
}

// LockError reports that another session holds the lock.
type LockError struct {
	LockPath string
	Holder   Holder
	Cause    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("another MoodMatch session is using this state directory (%s, lock file %s); "+
		"if that session is gone the lock is stale and the file can be removed", e.Holder, e.LockPath)
}

func (e *LockError) Unwrap() error { return e.Cause }

func (e *LockError) Is(target error) bool { return target == ErrLocked }

// ReadHolder parses the lock file at lockPath. Missing or unreadable files give a zero Holder.
func ReadHolder(lockPath string) Holder {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Holder{}
	}
	h := parseHolder(string(data))
	if h.PID > 0 {
		h.Running = isProcessRunning(h.PID)
	}
	return h
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "since":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.Since = t
			}
		}
	}
	return h
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
