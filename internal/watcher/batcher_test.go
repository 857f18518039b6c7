package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStatus struct {
	mu     sync.Mutex
	writes [][]string
}

func (r *recordingStatus) WriteStatus(pending []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, append([]string(nil), pending...))
	return nil
}

func (r *recordingStatus) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return nil
	}
	return r.writes[len(r.writes)-1]
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBatcher(t *testing.T, syncFn SyncFunc, clock *fakeClock) (*Batcher, *recordingStatus) {
	t.Helper()
	status := &recordingStatus{}
	b, err := New(status, syncFn, Options{Now: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, status
}

func writeEvent(path string) fsnotify.Event {
	return fsnotify.Event{Name: path, Op: fsnotify.Write}
}

func TestBatcher_BurstProducesSingleSync(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var syncs atomic.Int32
	b, status := newTestBatcher(t, func(context.Context) error {
		syncs.Add(1)
		return nil
	}, clock)
	root := t.TempDir()

	for i := range 5 {
		b.handleEvent(writeEvent(filepath.Join(root, "a.txt")))
		b.handleEvent(writeEvent(filepath.Join(root, "b.txt")))
		clock.Advance(300 * time.Millisecond)
		b.tick(t.Context())
		require.Zero(t, syncs.Load(), "no sync inside the debounce window (iteration %d)", i)
	}

	assert.Equal(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}, status.last())

	clock.Advance(DefaultDebounce)
	b.tick(t.Context())
	assert.Equal(t, int32(1), syncs.Load())
	assert.Empty(t, b.Pending())
	assert.Empty(t, status.last())

	clock.Advance(time.Minute)
	b.tick(t.Context())
	assert.Equal(t, int32(1), syncs.Load(), "idle ticks must not sync")
}

func TestBatcher_CooldownDefersSecondSync(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var syncs atomic.Int32
	b, _ := newTestBatcher(t, func(context.Context) error {
		syncs.Add(1)
		return nil
	}, clock)
	root := t.TempDir()

	b.handleEvent(writeEvent(filepath.Join(root, "one.txt")))
	clock.Advance(DefaultDebounce)
	b.tick(t.Context())
	require.Equal(t, int32(1), syncs.Load())

	b.handleEvent(writeEvent(filepath.Join(root, "two.txt")))
	clock.Advance(DefaultDebounce)
	b.tick(t.Context())
	assert.Equal(t, int32(1), syncs.Load(), "second sync inside the cooldown is refused")
	assert.Equal(t, []string{filepath.Join(root, "two.txt")}, b.Pending(), "pending set kept on refusal")

	clock.Advance(DefaultCooldown)
	b.tick(t.Context())
	assert.Equal(t, int32(2), syncs.Load())
	assert.Empty(t, b.Pending())
}

func TestBatcher_FailedSyncDoesNotStartCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	var syncs atomic.Int32
	b, _ := newTestBatcher(t, func(context.Context) error {
		if syncs.Add(1) == 1 {
			return errors.New("remote unreachable")
		}
		return nil
	}, clock)
	root := t.TempDir()

	b.handleEvent(writeEvent(filepath.Join(root, "one.txt")))
	clock.Advance(DefaultDebounce)
	b.tick(t.Context())
	require.Equal(t, int32(1), syncs.Load())
	assert.Empty(t, b.Pending())

	b.handleEvent(writeEvent(filepath.Join(root, "two.txt")))
	clock.Advance(DefaultDebounce)
	b.tick(t.Context())
	assert.Equal(t, int32(2), syncs.Load())
}

func TestBatcher_IgnoresGitAndOwnFiles(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	status := &recordingStatus{}
	root := t.TempDir()
	own := filepath.Join(root, "status.json")
	b, err := New(status, func(context.Context) error { return nil }, Options{
		Now:    clock.Now,
		Ignore: func(p string) bool { return p == own },
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	b.handleEvent(writeEvent(filepath.Join(root, ".git", "index")))
	b.handleEvent(writeEvent(filepath.Join(root, ".git", "refs", "heads", "main")))
	b.handleEvent(writeEvent(own))
	b.handleEvent(fsnotify.Event{Name: filepath.Join(root, "x.txt"), Op: fsnotify.Chmod})

	assert.Empty(t, b.Pending())
	assert.Empty(t, status.writes, "ignored events must not touch the status record")

	b.handleEvent(fsnotify.Event{Name: filepath.Join(root, "gone.txt"), Op: fsnotify.Remove})
	b.handleEvent(fsnotify.Event{Name: filepath.Join(root, "moved.txt"), Op: fsnotify.Rename})
	assert.Equal(t, []string{filepath.Join(root, "gone.txt"), filepath.Join(root, "moved.txt")}, b.Pending())
}

func TestBatcher_WatchIsRecursiveAndIdempotent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	b, _ := newTestBatcher(t, func(context.Context) error { return nil }, &fakeClock{now: time.Now()})
	require.NoError(t, b.Watch(root))
	require.NoError(t, b.Watch(root))

	want := []string{root, filepath.Join(root, "docs"), filepath.Join(root, "docs", "nested")}
	assert.ElementsMatch(t, want, b.Watched())

	require.NoError(t, b.Unwatch(filepath.Join(root, "docs")))
	assert.Equal(t, []string{root}, b.Watched())
	require.NoError(t, b.Unwatch(filepath.Join(root, "never-watched")))
	assert.Equal(t, []string{root}, b.Watched())
}

func TestBatcher_WatchRejectsMissingPath(t *testing.T) {
	b, _ := newTestBatcher(t, func(context.Context) error { return nil }, &fakeClock{now: time.Now()})
	err := b.Watch(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestBatcher_NewDirectoryIsWatchedAndItsFilesRecorded(t *testing.T) {
	root := t.TempDir()
	b, _ := newTestBatcher(t, func(context.Context) error { return nil }, &fakeClock{now: time.Now()})
	require.NoError(t, b.Watch(root))

	dir := filepath.Join(root, "later")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.txt"), []byte("x"), 0o600))

	b.handleEvent(fsnotify.Event{Name: dir, Op: fsnotify.Create})

	assert.Contains(t, b.Watched(), dir)
	assert.Equal(t, []string{dir, filepath.Join(dir, "early.txt")}, b.Pending())
}

func TestBatcher_RunSyncsRealFileChanges(t *testing.T) {
	root := t.TempDir()
	status := &recordingStatus{}
	synced := make(chan struct{}, 4)
	b, err := New(status, func(context.Context) error {
		synced <- struct{}{}
		return nil
	}, Options{
		Tick:     10 * time.Millisecond,
		Debounce: 50 * time.Millisecond,
		Cooldown: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	require.NoError(t, b.Watch(root))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case <-b.Ready():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for batcher ready")
	}

	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte{byte('a' + i)}, 0o600))
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sync")
	}

	select {
	case <-synced:
		t.Fatal("expected a single sync for the burst")
	case <-time.After(150 * time.Millisecond):
	}

	require.Eventually(t, func() bool { return len(b.Pending()) == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("batcher did not stop")
	}
}
