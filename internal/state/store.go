package state

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// ErrNoStatus is returned by ReadStatus when no Status record exists.
var ErrNoStatus = stderrors.New("status record absent")

// Store reads and writes the Status record and manages the Liveness Marker.
type Store struct {
	dir        string
	statusPath string
	pidPath    string
	owned      []string
	now        func() time.Time

	mu   sync.Mutex
	lock *flock.Flock
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.FileSystemError("failed to create state directory").WithCause(err).
			WithContext("path", dir).
			Build()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Store{
		dir:        abs,
		statusPath: filepath.Join(abs, statusFileName),
		pidPath:    filepath.Join(abs, pidFileName),
		now:        time.Now,
	}, nil
}

// Dir returns the absolute state directory.
func (s *Store) Dir() string { return s.dir }

// WriteStatus atomically replaces the Status record with the given pending
// set and a fresh timestamp.
func (s *Store) WriteStatus(pending []string) error {
	if pending == nil {
		pending = []string{}
	}
	info := StatusInfo{LastSync: s.now(), PendingChanges: pending}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return writeFileAtomic(s.statusPath, data, 0o644)
}

// ReadStatus returns the last Status record or ErrNoStatus.
func (s *Store) ReadStatus() (*StatusInfo, error) {
	data, err := os.ReadFile(s.statusPath)
	if os.IsNotExist(err) {
		return nil, ErrNoStatus
	}
	if err != nil {
		return nil, errors.FileSystemError("failed to read status record").WithCause(err).
			WithContext("path", s.statusPath).
			Build()
	}
	var info StatusInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.FileSystemError("corrupt status record").WithCause(err).WithRetry(errors.RetryNever).
			WithContext("path", s.statusPath).
			Build()
	}
	return &info, nil
}

// Own registers further files the daemon writes, such as the history journal
// and the log file. Empty paths are ignored.
func (s *Store) Own(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		s.owned = append(s.owned, p)
	}
}

// IsOwnFile reports whether path is one of the files the daemon writes: the
// status record and its temporary file, the pid file, and any path registered
// with Own together with its SQLite sidecars and rotated backups. Other files
// in the state directory are not matched.
func (s *Store) IsOwnFile(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	switch abs {
	case s.statusPath, s.statusPath + ".tmp", s.pidPath:
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, own := range s.owned {
		if ownedVariant(own, abs) {
			return true
		}
	}
	return false
}

var sidecarSuffixes = []string{"", "-wal", "-shm", "-journal"}

func ownedVariant(own, abs string) bool {
	for _, suffix := range sidecarSuffixes {
		if abs == own+suffix {
			return true
		}
	}
	if filepath.Dir(abs) != filepath.Dir(own) {
		return false
	}
	// Rotated logs are named <stem>-<timestamp><ext>, optionally gzipped.
	ext := filepath.Ext(own)
	stem := strings.TrimSuffix(filepath.Base(own), ext)
	name := strings.TrimSuffix(filepath.Base(abs), ".gz")
	return strings.HasPrefix(name, stem+"-") && strings.HasSuffix(name, ext) && len(name) > len(stem)+1+len(ext)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.FileSystemError("failed to write temporary file").WithCause(err).
			WithContext("path", tmp).
			Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.FileSystemError("failed to replace file").WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}
