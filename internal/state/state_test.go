package state

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	return s
}

func TestReadStatus_Absent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ReadStatus()
	require.ErrorIs(t, err, ErrNoStatus)
}

func TestReadStatus_Corrupt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.statusPath, []byte("{not json"), 0o600))

	_, err := s.ReadStatus()
	require.Error(t, err)
	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryFileSystem, classified.Category())
	assert.False(t, classified.CanRetry())
}

func TestWriteStatus_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.WriteStatus([]string{"/data/b.txt", "/data/a.txt"}))
	info, err := s.ReadStatus()
	require.NoError(t, err)
	assert.True(t, fixed.Equal(info.LastSync))
	assert.Equal(t, []string{"/data/b.txt", "/data/a.txt"}, info.PendingChanges)

	require.NoError(t, s.WriteStatus(nil))
	info, err = s.ReadStatus()
	require.NoError(t, err)
	assert.Empty(t, info.PendingChanges)
	assert.NotNil(t, info.PendingChanges)

	_, err = os.Stat(s.statusPath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestIsOwnFile(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.IsOwnFile(s.statusPath))
	assert.True(t, s.IsOwnFile(s.statusPath+".tmp"))
	assert.True(t, s.IsOwnFile(s.pidPath))
	assert.False(t, s.IsOwnFile(filepath.Join(t.TempDir(), "status.json")))
	assert.False(t, s.IsOwnFile(filepath.Join(s.Dir(), "notes.md")))
}

func TestIsOwnFile_RegisteredFiles(t *testing.T) {
	s := newTestStore(t)
	history := filepath.Join(s.Dir(), "history.db")
	logFile := filepath.Join(s.Dir(), "ghsync.log")
	s.Own(history, logFile, "")

	assert.True(t, s.IsOwnFile(history))
	assert.True(t, s.IsOwnFile(history+"-wal"))
	assert.True(t, s.IsOwnFile(history+"-shm"))
	assert.True(t, s.IsOwnFile(history+"-journal"))
	assert.True(t, s.IsOwnFile(logFile))
	assert.True(t, s.IsOwnFile(filepath.Join(s.Dir(), "ghsync-2026-10-19T10-00-00.000.log")))
	assert.True(t, s.IsOwnFile(filepath.Join(s.Dir(), "ghsync-2026-10-19T10-00-00.000.log.gz")))

	assert.False(t, s.IsOwnFile(filepath.Join(s.Dir(), "history.db.bak")))
	assert.False(t, s.IsOwnFile(filepath.Join(s.Dir(), "ghsync.md")))
	assert.False(t, s.IsOwnFile(filepath.Join(s.Dir(), "notes.md")))
	assert.False(t, s.IsOwnFile(filepath.Join(t.TempDir(), "history.db")))
}

func TestAcquireLock_Twice(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AcquireLock())
	t.Cleanup(func() { _ = s.ReleaseLock() })

	err := s.AcquireLock()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryLock))

	pid, err := s.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireLock_SecondHolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	first, err := NewStore(dir)
	require.NoError(t, err)
	second, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, first.AcquireLock())
	err = second.AcquireLock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	locked, err := second.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, first.ReleaseLock())
	require.NoError(t, second.AcquireLock())
	require.NoError(t, second.ReleaseLock())
}

func TestReleaseLock_RemovesMarker(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ReleaseLock())

	require.NoError(t, s.AcquireLock())
	require.NoError(t, s.ReleaseLock())

	_, err := s.ReadPID()
	require.ErrorIs(t, err, ErrNotRunning)
	require.NoError(t, s.ReleaseLock())
}

func TestStaleMarker(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.pidPath, []byte(strconv.Itoa(999999)), 0o644))

	locked, err := s.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)

	// A crashed daemon's marker does not block a new one.
	require.NoError(t, s.AcquireLock())
	pid, err := s.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	require.NoError(t, s.ReleaseLock())

	require.NoError(t, os.WriteFile(s.pidPath, []byte("123"), 0o644))
	require.NoError(t, s.RemoveStaleMarker())
	_, err = os.Stat(s.pidPath)
	assert.True(t, os.IsNotExist(err))
}
