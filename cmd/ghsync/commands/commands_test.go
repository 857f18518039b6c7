package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/eventstore"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/state"
	helpers "git.home.luguber.info/inful/ghsync/internal/testutil/testutils"
	"git.home.luguber.info/inful/ghsync/internal/ui"
)

func newTestCLI(t *testing.T) (*CLI, *Global, *bytes.Buffer) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	ui.DisableColors()
	t.Cleanup(ui.EnableColors)

	root := &CLI{Config: filepath.Join(home, ".ghsync.yaml")}
	var out bytes.Buffer
	return root, root.Global(&out), &out
}

func TestConfigCmd_UpdatesAndValidates(t *testing.T) {
	root, g, out := newTestCLI(t)

	cmd := &ConfigCmd{Remote: "git@github.com:alice/notes.git", Paths: []string{"docs", " notes "}, Interval: 60}
	require.NoError(t, cmd.Run(g, root))
	assert.Contains(t, out.String(), "Configuration saved")

	cfg, err := config.Load(root.Config)
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:alice/notes.git", cfg.RemoteURL)
	assert.Equal(t, []string{"docs", "notes"}, cfg.SyncPaths)
	assert.Equal(t, 60, cfg.SyncInterval)
	assert.Equal(t, config.DefaultBranch, cfg.Branch)

	require.Error(t, (&ConfigCmd{Remote: "https://github.com/alice/notes.git"}).Run(g, root))
	require.Error(t, (&ConfigCmd{Interval: 2}).Run(g, root))

	cfg, err = config.Load(root.Config)
	require.NoError(t, err)
	assert.Equal(t, "git@github.com:alice/notes.git", cfg.RemoteURL, "rejected update must not be saved")
	assert.Equal(t, 60, cfg.SyncInterval)
}

func TestConfigCmd_PrintsWithoutFlags(t *testing.T) {
	root, g, out := newTestCLI(t)
	require.NoError(t, (&ConfigCmd{}).Run(g, root))
	assert.Contains(t, out.String(), "(not set)")
	_, err := os.Stat(root.Config)
	assert.True(t, os.IsNotExist(err), "printing must not create the file")
}

func TestAuthCmd_RecordsKey(t *testing.T) {
	root, g, out := newTestCLI(t)

	require.Error(t, (&AuthCmd{Key: filepath.Join(t.TempDir(), "missing")}).Run(g, root))

	key := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(key, []byte("not really a key"), 0o600))
	require.NoError(t, (&AuthCmd{Key: key}).Run(g, root))
	assert.Contains(t, out.String(), key)

	cfg, err := config.Load(root.Config)
	require.NoError(t, err)
	assert.Equal(t, key, cfg.SSHKeyPath)

	require.NoError(t, (&AuthCmd{Agent: true}).Run(g, root))
	cfg, err = config.Load(root.Config)
	require.NoError(t, err)
	assert.Empty(t, cfg.SSHKeyPath)
}

func TestStopCmd_NotRunning(t *testing.T) {
	root, g, out := newTestCLI(t)
	require.NoError(t, (&StopCmd{}).Run(g, root))
	assert.Contains(t, out.String(), "not running")
}

func TestStopCmd_RemovesStaleMarker(t *testing.T) {
	root, g, out := newTestCLI(t)
	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(cfg.StateDir, 0o750))
	marker := filepath.Join(cfg.StateDir, "ghsync.pid")
	require.NoError(t, os.WriteFile(marker, []byte("999999\n"), 0o644))

	require.NoError(t, (&StopCmd{}).Run(g, root))
	assert.Contains(t, out.String(), "stale pid file")
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestStatusCmd_ReportsStateAndPending(t *testing.T) {
	root, g, out := newTestCLI(t)
	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)

	store, err := state.NewStore(cfg.StateDir)
	require.NoError(t, err)
	require.NoError(t, store.WriteStatus([]string{"/tmp/notes/a.txt"}))

	require.NoError(t, (&StatusCmd{}).Run(g, root))
	text := out.String()
	assert.Contains(t, text, "Daemon is not running")
	assert.Contains(t, text, "Pending changes")
	assert.Contains(t, text, "/tmp/notes/a.txt")

	require.NoError(t, store.AcquireLock())
	defer func() { _ = store.ReleaseLock() }()
	out.Reset()
	require.NoError(t, (&StatusCmd{}).Run(g, root))
	assert.Contains(t, out.String(), "Daemon is running")
}

func TestStatusCmd_LeavesRepositoryUntouched(t *testing.T) {
	root, g, out := newTestCLI(t)
	remote := helpers.NewRemote(t, "main")
	remote.Commit(t, "readme.md", "hello\n", "seed")

	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	_, err = git.Open(cfg.SyncRoot, remote.BarePath, "main", git.Options{})
	require.NoError(t, err)

	// Config edited while the daemon owns the working tree.
	cfg.RemoteURL = filepath.Join(t.TempDir(), "elsewhere.git")
	cfg.Branch = "other"
	require.NoError(t, config.Save(root.Config, cfg))

	store, err := state.NewStore(cfg.StateDir)
	require.NoError(t, err)
	require.NoError(t, store.AcquireLock())
	defer func() { _ = store.ReleaseLock() }()

	require.NoError(t, (&StatusCmd{Fetch: true}).Run(g, root))
	assert.Contains(t, out.String(), "skipped fetch")

	repo, err := ggit.PlainOpen(cfg.SyncRoot)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewBranchReferenceName("main"), head.Name())
	_, err = repo.Reference(plumbing.NewBranchReferenceName("other"), false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
	_, err = repo.Reference(plumbing.NewRemoteReferenceName("origin", "main"), false)
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
	origin, err := repo.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, []string{remote.BarePath}, origin.Config().URLs)
}

func TestStatusCmd_FetchWhenIdle(t *testing.T) {
	root, g, out := newTestCLI(t)
	remote := helpers.NewRemote(t, "main")

	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	cfg.RemoteURL = remote.BarePath
	require.NoError(t, config.Save(root.Config, cfg))
	_, err = git.Open(cfg.SyncRoot, remote.BarePath, "main", git.Options{})
	require.NoError(t, err)
	remote.Commit(t, "readme.md", "hello\n", "seed")

	require.NoError(t, (&StatusCmd{Fetch: true}).Run(g, root))
	assert.Contains(t, out.String(), "Commits ahead of remote")
	assert.Contains(t, out.String(), "Commits behind remote")

	store, err := state.NewStore(cfg.StateDir)
	require.NoError(t, err)
	locked, err := store.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestPushAndPullCmd_AgainstLocalRemote(t *testing.T) {
	root, g, out := newTestCLI(t)
	remote := helpers.NewRemote(t, "main")
	remote.Commit(t, "readme.md", "hello\n", "seed")

	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	cfg.RemoteURL = remote.BarePath
	require.NoError(t, config.Save(root.Config, cfg))

	// loadConfig insists on SSH remotes; drive the one-shot path directly.
	d, err := newOnceDaemon(g, cfg)
	require.NoError(t, err)
	_, err = d.Once(t.Context(), "pull")
	require.NoError(t, err)
	helpers.NewFileAssertions(t, cfg.SyncRoot).AssertFileContent("readme.md", "hello\n")

	require.NoError(t, os.WriteFile(filepath.Join(cfg.SyncRoot, "a.txt"), []byte("a\n"), 0o644))
	rep, err := d.Once(t.Context(), "sync")
	require.NoError(t, err)
	reportPull(g, rep)
	reportPush(g, rep)
	assert.Contains(t, out.String(), "Committed and pushed")
	assert.Contains(t, remote.CommitFiles(t, remote.Tip(t)), "a.txt")

	out.Reset()
	require.NoError(t, (&LogsCmd{N: 5}).Run(g, root))
	assert.Contains(t, out.String(), "Sync history")
	assert.Contains(t, out.String(), string(events.TriggerManual))
}

func TestPushCmd_RejectsNonSSHRemote(t *testing.T) {
	root, g, _ := newTestCLI(t)
	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	cfg.RemoteURL = "/srv/git/notes.git"
	require.NoError(t, config.Save(root.Config, cfg))

	require.Error(t, (&PushCmd{}).Run(g, root))
}

func TestLogsCmd_FallsBackToCommits(t *testing.T) {
	root, g, out := newTestCLI(t)
	remote := helpers.NewRemote(t, "main")
	cfg, err := config.LoadOrDefault(root.Config)
	require.NoError(t, err)
	cfg.RemoteURL = remote.BarePath
	require.NoError(t, config.Save(root.Config, cfg))

	// An empty journal file must not hide the commit log.
	require.NoError(t, os.MkdirAll(cfg.StateDir, 0o750))
	store, err := eventstore.NewSQLiteStore(cfg.HistoryPath())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = git.Open(cfg.SyncRoot, cfg.RemoteURL, cfg.Branch, git.Options{})
	require.NoError(t, err)

	require.NoError(t, (&LogsCmd{N: 5}).Run(g, root))
	assert.Contains(t, out.String(), "Recent commits")
	assert.Contains(t, out.String(), "initial commit")
}
