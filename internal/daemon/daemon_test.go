package daemon

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	"git.home.luguber.info/inful/ghsync/internal/eventstore"
	"git.home.luguber.info/inful/ghsync/internal/state"
	helpers "git.home.luguber.info/inful/ghsync/internal/testutil/testutils"
	"git.home.luguber.info/inful/ghsync/internal/watcher"
)

const waitFor = 10 * time.Second

func testConfig(t *testing.T, remote *helpers.Remote) *config.Config {
	t.Helper()
	return &config.Config{
		RemoteURL:    remote.BarePath,
		Branch:       remote.Branch,
		SyncInterval: config.DefaultSyncInterval,
		SyncRoot:     filepath.Join(t.TempDir(), "root"),
		StateDir:     filepath.Join(t.TempDir(), "state"),
		RemoteName:   config.DefaultRemoteName,
		AuthorName:   "tester",
		AuthorEmail:  "tester@example.com",
		PollBackoff:  config.RetryBackoffFixed,
	}
}

func testDeps(t *testing.T) (Deps, eventstore.Store) {
	t.Helper()
	journal, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	return Deps{
		Journal: journal,
		Batcher: watcher.Options{
			Tick:     20 * time.Millisecond,
			Debounce: 100 * time.Millisecond,
			Cooldown: 100 * time.Millisecond,
		},
		PollInterval:    50 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}, journal
}

// startDaemon runs d in the background and waits until it is ready.
func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("daemon exited before ready: %v", err)
	case <-time.After(waitFor):
		cancel()
		t.Fatal("timed out waiting for daemon ready")
	}
	return cancel, errCh
}

func TestDaemon_SyncsBothDirections(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	remote.Commit(t, "readme.md", "hello\n", "seed")

	cfg := testConfig(t, remote)
	deps, journal := testDeps(t)
	d, err := New(cfg, deps)
	require.NoError(t, err)

	cancel, errCh := startDaemon(t, d)
	defer cancel()
	assert.Equal(t, StatusRunning, d.Status())

	// Initial sync brought the remote content down.
	content, err := os.ReadFile(filepath.Join(cfg.SyncRoot, "readme.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))

	// Remote poller picks up new commits.
	remote.Commit(t, "b.txt", "from remote\n", "remote change")
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(cfg.SyncRoot, "b.txt"))
		return err == nil
	}, waitFor, 20*time.Millisecond)

	// Local changes are committed and pushed.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SyncRoot, "a.txt"), []byte("local\n"), 0o644))
	require.Eventually(t, func() bool {
		tip := remote.Tip(t)
		return !tip.IsZero() && slices.Contains(remote.CommitFiles(t, tip), "a.txt")
	}, waitFor, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		info, err := d.Store().ReadStatus()
		return err == nil && len(info.PendingChanges) == 0
	}, waitFor, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		rows, err := journal.Recent(t.Context(), 50)
		if err != nil {
			return false
		}
		for _, row := range rows {
			if row.Type() == eventstore.TypeSyncCompleted && row.Metadata()["trigger"] == "local" {
				return true
			}
		}
		return false
	}, waitFor, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StatusStopped, d.Status())

	locked, err := d.Store().IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestDaemon_SecondInstanceIsRefused(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	cfg := testConfig(t, remote)
	deps, _ := testDeps(t)

	first, err := New(cfg, deps)
	require.NoError(t, err)
	cancel, errCh := startDaemon(t, first)

	second, err := New(cfg, deps)
	require.NoError(t, err)
	err = second.Run(t.Context())
	require.ErrorIs(t, err, state.ErrAlreadyRunning)
	assert.Equal(t, StatusStopped, second.Status())

	_, err = second.Once(t.Context(), queue.OpPush)
	require.ErrorIs(t, err, state.ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-errCh)
}

func TestDaemon_RunTwiceConcurrentlyFails(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	deps, _ := testDeps(t)
	d, err := New(testConfig(t, remote), deps)
	require.NoError(t, err)

	cancel, errCh := startDaemon(t, d)
	defer cancel()
	require.Error(t, d.Run(t.Context()))

	cancel()
	require.NoError(t, <-errCh)
}

func TestDaemon_EmptyRemoteReceivesInitialCommit(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	deps, _ := testDeps(t)
	d, err := New(testConfig(t, remote), deps)
	require.NoError(t, err)

	cancel, errCh := startDaemon(t, d)
	assert.False(t, remote.Tip(t).IsZero())

	cancel()
	require.NoError(t, <-errCh)
}

func TestNew_RequiresRemote(t *testing.T) {
	_, err := New(nil, Deps{})
	require.Error(t, err)

	_, err = New(&config.Config{Branch: "main", StateDir: t.TempDir()}, Deps{})
	require.Error(t, err)
}

func TestOnce_PushCommitsLocalChanges(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	cfg := testConfig(t, remote)
	deps, journal := testDeps(t)
	d, err := New(cfg, deps)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(cfg.SyncRoot, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SyncRoot, "notes.txt"), []byte("draft\n"), 0o644))

	rep, err := d.Once(t.Context(), queue.OpPush)
	require.NoError(t, err)
	require.NotNil(t, rep.Push)
	assert.True(t, rep.Push.Committed)
	assert.True(t, rep.Push.Pushed)

	tip := remote.Tip(t)
	assert.Equal(t, rep.Head, tip.String())
	assert.Contains(t, remote.CommitFiles(t, tip), "notes.txt")

	// The journal consumer is drained before Once returns.
	rows, err := journal.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "manual", rows[0].Metadata()["trigger"])

	locked, err := d.Store().IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestOnce_PullBringsRemoteContent(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	remote.Commit(t, "readme.md", "hello\n", "seed")
	cfg := testConfig(t, remote)
	deps, _ := testDeps(t)
	d, err := New(cfg, deps)
	require.NoError(t, err)

	rep, err := d.Once(t.Context(), queue.OpPull)
	require.NoError(t, err)
	require.NotNil(t, rep.Pull)
	helpers.NewFileAssertions(t, cfg.SyncRoot).AssertFileContent("readme.md", "hello\n")

	_, err = d.Once(t.Context(), queue.Op("rebase"))
	require.Error(t, err)
}
