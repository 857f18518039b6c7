package state

import (
	stderrors "errors"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// ErrAlreadyRunning is returned when another holder owns the Liveness Marker.
var ErrAlreadyRunning = stderrors.New("already running")

// ErrNotRunning is returned by ReadPID when no marker exists.
var ErrNotRunning = stderrors.New("not running")

// AcquireLock takes the advisory lock on the Liveness Marker and records the
// current pid in it. A marker left behind by a crashed process does not block
// acquisition because its lock died with the process.
func (s *Store) AcquireLock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		return errors.LockError("already running").
			WithCause(ErrAlreadyRunning).
			WithContext("pid_file", s.pidPath).
			Build()
	}

	fl := flock.New(s.pidPath)
	locked, err := fl.TryLock()
	if err != nil {
		return errors.WrapError(err, errors.CategoryLock, "failed to lock pid file").
			WithContext("pid_file", s.pidPath).
			Build()
	}
	if !locked {
		b := errors.LockError("already running").
			WithCause(ErrAlreadyRunning).
			WithContext("pid_file", s.pidPath)
		if pid, perr := s.ReadPID(); perr == nil {
			b = b.WithContext("pid", pid)
		}
		return b.Build()
	}

	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = fl.Unlock()
		return errors.FileSystemError("failed to write pid file").WithCause(err).
			WithContext("pid_file", s.pidPath).
			Build()
	}
	s.lock = fl
	return nil
}

// ReleaseLock removes the marker and releases the lock. It is safe to call
// when the lock is not held.
func (s *Store) ReleaseLock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		return nil
	}
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		return errors.FileSystemError("failed to remove pid file").WithCause(err).
			WithContext("pid_file", s.pidPath).
			Build()
	}
	err := s.lock.Unlock()
	s.lock = nil
	if err != nil {
		return errors.WrapError(err, errors.CategoryLock, "failed to unlock pid file").Build()
	}
	return nil
}

// ReadPID returns the pid recorded in the marker.
func (s *Store) ReadPID() (int, error) {
	data, err := os.ReadFile(s.pidPath)
	if os.IsNotExist(err) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, errors.FileSystemError("failed to read pid file").WithCause(err).Build()
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.FileSystemError("invalid pid file").WithCause(err).WithRetry(errors.RetryNever).
			WithContext("pid_file", s.pidPath).
			Build()
	}
	return pid, nil
}

// IsLocked reports whether some process currently holds the marker lock.
// A marker that exists but is not locked is stale.
func (s *Store) IsLocked() (bool, error) {
	s.mu.Lock()
	held := s.lock != nil
	s.mu.Unlock()
	if held {
		return true, nil
	}

	if _, err := os.Stat(s.pidPath); os.IsNotExist(err) {
		return false, nil
	}
	other := flock.New(s.pidPath)
	locked, err := other.TryLock()
	if err != nil {
		return false, errors.WrapError(err, errors.CategoryLock, "failed to test pid file lock").Build()
	}
	if locked {
		_ = other.Unlock()
		return false, nil
	}
	return true, nil
}

// RemoveStaleMarker deletes a marker whose lock is no longer held.
func (s *Store) RemoveStaleMarker() error {
	locked, err := s.IsLocked()
	if err != nil {
		return err
	}
	if locked {
		return errors.LockError("pid file is held by a running process").WithCause(ErrAlreadyRunning).Build()
	}
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		return errors.FileSystemError("failed to remove stale pid file").WithCause(err).Build()
	}
	return nil
}
