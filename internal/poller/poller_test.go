package poller

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	ggit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/retry"
	helpers "git.home.luguber.info/inful/ghsync/internal/testutil/testutils"
)

type fakeRemote struct {
	mu         sync.Mutex
	fetchErr   error
	behind     int
	fetches    int
	integrates int
	syncs      int
}

func (f *fakeRemote) Fetch(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.fetchErr
}

func (f *fakeRemote) CountBehind() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.behind, nil
}

func (f *fakeRemote) Integrate() (git.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.integrates++
	f.behind = 0
	return git.PullResult{Outcome: git.PullFastForward}, nil
}

func (f *fakeRemote) Sync(context.Context) (git.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return git.SyncResult{Pull: git.PullResult{Outcome: git.PullUpToDate}, Push: git.PushResult{Pushed: true}}, nil
}

func (f *fakeRemote) counts() (fetches, integrates, syncs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, f.integrates, f.syncs
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func startQueue(t *testing.T, bus *events.Bus) *queue.SyncQueue {
	t.Helper()
	q := queue.New(queue.Options{Bus: bus, Branch: "main"})
	q.Start()
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return q
}

func TestPoll_UpToDateDoesNotPull(t *testing.T) {
	remote := &fakeRemote{}
	p, err := New(remote, startQueue(t, nil), Options{})
	require.NoError(t, err)

	require.NoError(t, p.Poll(t.Context()))
	fetches, integrates, _ := remote.counts()
	assert.Equal(t, 1, fetches)
	assert.Zero(t, integrates)
}

func TestPoll_BehindPulls(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	completed, unsub := events.Subscribe[events.SyncCompleted](bus, 1)
	defer unsub()

	remote := &fakeRemote{behind: 2}
	p, err := New(remote, startQueue(t, bus), Options{})
	require.NoError(t, err)

	require.NoError(t, p.Poll(t.Context()))
	_, integrates, _ := remote.counts()
	assert.Equal(t, 1, integrates)

	evt := <-completed
	assert.Equal(t, events.TriggerRemote, evt.Trigger)
	assert.Equal(t, "fast_forward", evt.PullOutcome)
}

func TestPoll_FailuresBackOff(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	remote := &fakeRemote{fetchErr: errors.New("network down")}
	p, err := New(remote, startQueue(t, nil), Options{
		Now:    clock.Now,
		Policy: retry.NewPolicy(config.RetryBackoffExponential, time.Second, 10*time.Second),
	})
	require.NoError(t, err)

	err = p.Poll(t.Context())
	require.Error(t, err)
	var se *stageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fetch", se.stage)

	require.NoError(t, p.Poll(t.Context()), "skipped while backing off")
	fetches, _, _ := remote.counts()
	assert.Equal(t, 1, fetches)

	clock.Advance(time.Second)
	require.Error(t, p.Poll(t.Context()))
	fetches, _, _ = remote.counts()
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 2, p.backoff.Failures())

	remote.mu.Lock()
	remote.fetchErr = nil
	remote.mu.Unlock()
	clock.Advance(time.Minute)
	require.NoError(t, p.Poll(t.Context()))
	assert.Zero(t, p.backoff.Failures())
}

func TestPoll_CredentialFailureLogsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	remote := &fakeRemote{fetchErr: ferrors.AuthError("remote rejected credentials").Build()}
	p, err := New(remote, startQueue(t, nil), Options{Logger: logger})
	require.NoError(t, err)
	require.Error(t, p.Poll(t.Context()))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)

	buf.Reset()
	remote.mu.Lock()
	remote.fetchErr = errors.New("network down")
	remote.mu.Unlock()
	p.backoff.Success()
	require.Error(t, p.Poll(t.Context()))
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestSyncNow_UsesPeriodicTrigger(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	completed, unsub := events.Subscribe[events.SyncCompleted](bus, 1)
	defer unsub()

	remote := &fakeRemote{}
	p, err := New(remote, startQueue(t, bus), Options{})
	require.NoError(t, err)

	require.NoError(t, p.SyncNow(t.Context()))
	evt := <-completed
	assert.Equal(t, events.TriggerPeriodic, evt.Trigger)
	assert.Equal(t, "sync", evt.Op)
	assert.True(t, evt.Pushed)
}

func TestPoller_StartStop(t *testing.T) {
	remote := &fakeRemote{}
	p, err := New(remote, startQueue(t, nil), Options{
		Interval:     20 * time.Millisecond,
		SyncInterval: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, p.Start(t.Context()))
	require.NoError(t, p.Start(t.Context()), "second start is a no-op")

	require.Eventually(t, func() bool {
		fetches, _, syncs := remote.counts()
		return fetches >= 2 && syncs >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	require.Error(t, p.Start(t.Context()))

	fetches, _, _ := remote.counts()
	time.Sleep(60 * time.Millisecond)
	after, _, _ := remote.counts()
	assert.Equal(t, fetches, after, "no polls after Stop")
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, startQueue(t, nil), Options{})
	require.Error(t, err)
	_, err = New(&fakeRemote{}, nil, Options{})
	require.Error(t, err)
}

func TestPoll_PullsRealRemoteAdvance(t *testing.T) {
	remote := helpers.NewRemote(t, "main")
	remote.Commit(t, "a.txt", "A", "A")

	localPath := filepath.Join(t.TempDir(), "local")
	_, err := ggit.PlainClone(localPath, false, &ggit.CloneOptions{
		URL:           remote.BarePath,
		ReferenceName: plumbing.NewBranchReferenceName("main"),
		SingleBranch:  true,
	})
	require.NoError(t, err)
	repo, err := git.Open(localPath, remote.BarePath, "main", git.Options{})
	require.NoError(t, err)

	p, err := New(repo, startQueue(t, nil), Options{})
	require.NoError(t, err)

	tip := remote.Commit(t, "b.txt", "B", "B")
	require.NoError(t, p.Poll(t.Context()))

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, tip, head)
	content, err := os.ReadFile(filepath.Join(localPath, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(content))
}
