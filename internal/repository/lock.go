package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// staleAfter is how old a lock may get before another process may take it.
const staleAfter = 30 * time.Minute

// LockFile is the metadata stored in a session lock file.
type LockFile struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	SessionID string    `json:"session_id"`
	Interface string    `json:"interface"` // "cli", "chat" or "flow"
	Timestamp time.Time `json:"timestamp"`
}

// FileLock serializes writers of one session across processes.
type FileLock struct {
	path      string
	sessionID string
	iface     string
	file      *os.File
}

// NewFileLock creates a lock at path for the given session and interface.
func NewFileLock(path, sessionID, iface string) *FileLock {
	return &FileLock{
		path:      path,
		sessionID: sessionID,
		iface:     iface,
	}
}

// Acquire takes the lock without blocking. A lock held by a dead process or
// older than 30 minutes is stolen.
func (l *FileLock) Acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			zap.L().Warn("failed to close lock file", zap.String("path", l.path), zap.Error(closeErr))
		}

		existing, readErr := l.readLockFile()
		if readErr == nil && isStale(existing) {
			return l.stealLock()
		}
		if readErr == nil {
			age := time.Since(existing.Timestamp).Round(time.Second)
			return fmt.Errorf("session %s locked by %s (PID %d, %v ago)",
				l.sessionID, existing.Interface, existing.PID, age)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.file = file

	hostname, _ := os.Hostname()
	data, _ := json.MarshalIndent(LockFile{
		PID:       os.Getpid(),
		Hostname:  hostname,
		SessionID: l.sessionID,
		Interface: l.iface,
		Timestamp: time.Now(),
	}, "", "  ")

	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write lock metadata: %w", err)
	}

	return nil
}

// Release releases the lock and removes the lock file.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		zap.L().Warn("failed to release flock", zap.String("path", l.path), zap.Error(err))
	}
	if err := l.file.Close(); err != nil {
		zap.L().Warn("failed to close lock file", zap.String("path", l.path), zap.Error(err))
	}
	l.file = nil

	return os.Remove(l.path)
}

func (l *FileLock) readLockFile() (*LockFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var lock LockFile
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// isStale reports whether the holder is gone or the lock has expired.
func isStale(lock *LockFile) bool {
	process, err := os.FindProcess(lock.PID)
	if err != nil {
		return true
	}

	// On Unix FindProcess always succeeds; signal 0 probes liveness.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return true
	}

	return time.Since(lock.Timestamp) > staleAfter
}

func (l *FileLock) stealLock() error {
	zap.L().Info("stealing stale session lock", zap.String("session_id", l.sessionID))
	_ = os.Remove(l.path)
	return l.Acquire()
}
