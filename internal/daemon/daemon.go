// Package daemon wires the sync components together and owns the daemon
// lifecycle: liveness lock, initial sync, change batcher, remote poller,
// serialized sync queue, event consumers and the bounded shutdown.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	"git.home.luguber.info/inful/ghsync/internal/eventstore"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/metrics"
	"git.home.luguber.info/inful/ghsync/internal/notify"
	"git.home.luguber.info/inful/ghsync/internal/poller"
	"git.home.luguber.info/inful/ghsync/internal/retry"
	"git.home.luguber.info/inful/ghsync/internal/state"
	"git.home.luguber.info/inful/ghsync/internal/watcher"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

const (
	// DefaultShutdownTimeout bounds how long shutdown waits for the running
	// sync job and the event consumers.
	DefaultShutdownTimeout = 30 * time.Second

	// journalRetention is the number of history rows kept across restarts.
	journalRetention = 1000
)

// Deps are the daemon's collaborators. Everything is optional: a nil field is
// built from the configuration.
type Deps struct {
	Logger *slog.Logger
	Auth   auth.Provider
	Now    func() time.Time

	// Registry backs the metrics endpoint. When nil and metrics_addr is set a
	// registry with Go and process collectors is created.
	Registry *prom.Registry
	Recorder metrics.Recorder

	// Journal records sync history; defaults to SQLite at cfg.HistoryPath().
	// A journal passed in is not closed by the daemon.
	Journal eventstore.Store
	// Notifier publishes sync events; defaults to a NATS connection when
	// nats_url is set.
	Notifier *notify.Notifier

	Batcher         watcher.Options
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

// Daemon runs one sync root against one remote branch.
type Daemon struct {
	cfg   *config.Config
	deps  Deps
	log   *slog.Logger
	store *state.Store

	status    atomic.Value
	startTime time.Time
	ready     chan struct{}
	readyOnce sync.Once
}

// components are the per-run resources, torn down in reverse order.
type components struct {
	repo     *git.Repository
	journal  eventstore.Store
	notifier *notify.Notifier
	bus      *events.Bus
	queue    *queue.SyncQueue
	workers  *WorkerGroup
	server   *metricsServer
	batcher  *watcher.Batcher
	poller   *poller.Poller

	ownsJournal  bool
	ownsNotifier bool
}

// New prepares the state directory. cfg is expected to have passed
// Validate; New only insists on a remote. It does not take the liveness
// lock; Run does.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ValidationError("daemon requires a configuration").Build()
	}
	if cfg.RemoteURL == "" {
		return nil, ferrors.ConfigError("remote_url is not set").Build()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewManager(cfg.SSHKeyPath)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Registry == nil && cfg.MetricsAddr != "" {
		deps.Registry = prom.NewRegistry()
		deps.Registry.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	}
	if deps.Recorder == nil && deps.Registry != nil {
		deps.Recorder = metrics.NewPrometheusRecorder(deps.Registry)
	}
	deps.Recorder = metrics.OrNoop(deps.Recorder)
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = DefaultShutdownTimeout
	}

	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger.With(logfields.Branch(cfg.Branch), logfields.Remote(cfg.RemoteURL)),
		store: store,
		ready: make(chan struct{}),
	}
	d.status.Store(StatusStopped)
	return d, nil
}

// Store returns the state store holding the Status record and liveness marker.
func (d *Daemon) Store() *state.Store { return d.store }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status, _ := d.status.Load().(Status)
	return status
}

// Ready is closed once the daemon is watching and polling.
func (d *Daemon) Ready() <-chan struct{} { return d.ready }

// Run holds the liveness lock and keeps the sync root and the remote branch in
// step until ctx is cancelled. Cancellation is a clean stop and returns nil.
func (d *Daemon) Run(ctx context.Context) (err error) {
	if !d.status.CompareAndSwap(StatusStopped, StatusStarting) {
		return ferrors.DaemonError("daemon already started").Build()
	}
	if err := d.store.AcquireLock(); err != nil {
		d.status.Store(StatusStopped)
		return err
	}
	d.startTime = d.deps.Now()
	d.log.Info("Daemon starting", logfields.PID(os.Getpid()), logfields.Path(d.cfg.SyncRoot))

	c := &components{}
	defer func() {
		d.status.Store(StatusStopping)
		d.shutdown(c)
		if rerr := d.store.ReleaseLock(); rerr != nil {
			d.log.Warn("Failed to release liveness marker", logfields.Error(rerr))
		}
		d.status.Store(StatusStopped)
		d.log.Info("Daemon stopped", slog.Duration("uptime", d.deps.Now().Sub(d.startTime)))
	}()

	if err := d.start(ctx, c); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	d.status.Store(StatusRunning)
	d.readyOnce.Do(func() { close(d.ready) })
	d.log.Info("Daemon running", slog.Int("watch_paths", len(c.batcher.Watched())))
	return c.batcher.Run(ctx)
}

func (d *Daemon) start(ctx context.Context, c *components) error {
	repo, err := d.openRepository()
	if err != nil {
		return err
	}
	c.repo = repo

	d.openJournal(ctx, c)
	d.openNotifier(c)

	c.bus = events.NewBus()
	c.queue = queue.New(queue.Options{
		Bus:    c.bus,
		Branch: d.cfg.Branch,
		Logger: d.deps.Logger,
		Now:    d.deps.Now,
	})
	c.queue.Start()
	c.workers = NewWorkerGroup(d.deps.Logger)
	d.startConsumers(ctx, c)

	if d.cfg.MetricsAddr != "" {
		srv, err := newMetricsServer(d.cfg.MetricsAddr, d.deps.Registry, func() bool {
			return d.Status() == StatusRunning
		}, d.deps.Logger)
		if err != nil {
			return err
		}
		c.server = srv
		c.workers.Go("metrics-http", srv.Serve)
	}

	// Not fatal: the periodic sync retries.
	if _, err := c.queue.Do(ctx, queue.SyncJob(events.TriggerInitial, repo.Sync)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		d.log.Warn("Initial sync failed; continuing", logfields.Error(err))
		if ferrors.HasCategory(err, ferrors.CategoryAuth) {
			d.log.Warn("Remote rejected credentials; check the SSH agent or run 'ghsync auth --key'")
		}
	}

	opts := d.deps.Batcher
	d.store.Own(d.cfg.HistoryPath(), d.cfg.LogFile)
	opts.Ignore = d.store.IsOwnFile
	opts.Recorder = d.deps.Recorder
	opts.Logger = d.deps.Logger
	if opts.Now == nil {
		opts.Now = d.deps.Now
	}
	batcher, err := watcher.New(d.store, func(ctx context.Context) error {
		_, err := c.queue.Do(ctx, queue.SyncJob(events.TriggerLocal, repo.Sync))
		return err
	}, opts)
	if err != nil {
		return err
	}
	c.batcher = batcher
	for _, p := range d.cfg.WatchPaths() {
		if err := os.MkdirAll(p, 0o750); err != nil {
			return ferrors.FileSystemError("failed to create watch path").WithCause(err).
				WithContext("path", p).
				Fatal().
				Build()
		}
		if err := batcher.Watch(p); err != nil {
			return err
		}
	}

	pl, err := poller.New(repo, c.queue, poller.Options{
		Interval:     d.deps.PollInterval,
		SyncInterval: d.cfg.Interval(),
		Policy:       retry.NewPolicy(d.cfg.PollBackoff, 0, 0),
		Now:          d.deps.Now,
		Recorder:     d.deps.Recorder,
		Logger:       d.deps.Logger,
	})
	if err != nil {
		return err
	}
	c.poller = pl
	if err := pl.Start(ctx); err != nil {
		return err
	}

	if err := d.store.WriteStatus(nil); err != nil {
		d.log.Warn("Failed to write status record", logfields.Error(err))
	}
	return nil
}

func (d *Daemon) openRepository() (*git.Repository, error) {
	if err := os.MkdirAll(d.cfg.SyncRoot, 0o750); err != nil {
		return nil, ferrors.FileSystemError("failed to create sync root").WithCause(err).
			WithContext("path", d.cfg.SyncRoot).
			Fatal().
			Build()
	}
	return git.Open(d.cfg.SyncRoot, d.cfg.RemoteURL, d.cfg.Branch, git.Options{
		RemoteName:  d.cfg.RemoteName,
		Auth:        d.deps.Auth,
		AuthorName:  d.cfg.AuthorName,
		AuthorEmail: d.cfg.AuthorEmail,
		Now:         d.deps.Now,
		Logger:      d.deps.Logger,
	})
}

func (d *Daemon) openJournal(ctx context.Context, c *components) {
	if d.deps.Journal != nil {
		c.journal = d.deps.Journal
		return
	}
	store, err := eventstore.NewSQLiteStore(d.cfg.HistoryPath())
	if err != nil {
		d.log.Warn("Sync history disabled", logfields.Path(d.cfg.HistoryPath()), logfields.Error(err))
		return
	}
	if n, err := store.Prune(ctx, journalRetention); err != nil {
		d.log.Warn("Failed to prune sync history", logfields.Error(err))
	} else if n > 0 {
		d.log.Debug("Pruned sync history", slog.Int64("rows", n))
	}
	c.journal = store
	c.ownsJournal = true
}

func (d *Daemon) openNotifier(c *components) {
	if d.deps.Notifier != nil {
		c.notifier = d.deps.Notifier
		return
	}
	if d.cfg.NATSURL == "" {
		return
	}
	n, err := notify.Connect(d.cfg.NATSURL, d.cfg.NATSSubject, d.deps.Logger)
	if err != nil {
		d.log.Warn("Sync notifications disabled", logfields.Error(err))
		return
	}
	c.notifier = n
	c.ownsNotifier = true
}

// startConsumers subscribes before the first job runs so no completion is
// missed. Consumers exit when the bus closes.
func (d *Daemon) startConsumers(ctx context.Context, c *components) {
	if c.journal != nil {
		ch, _ := events.Subscribe[events.Event](c.bus, consumerBuffer)
		c.workers.Go("journal", func() { journalWriter(ctx, c.journal, ch, d.deps.Logger) })
	}

	ch, _ := events.Subscribe[events.Event](c.bus, consumerBuffer)
	c.workers.Go("metrics", func() { metricsRecorder(d.deps.Recorder, ch) })

	if c.notifier != nil {
		ch, _ := events.Subscribe[events.Event](c.bus, consumerBuffer)
		c.workers.Go("notifier", func() { c.notifier.Run(context.WithoutCancel(ctx), ch) })
	}
}

// shutdown stops producers first, then the queue, then consumers, all within
// ShutdownTimeout. Failures are logged; the lock is released by the caller.
func (d *Daemon) shutdown(c *components) {
	ctx, cancel := context.WithTimeout(context.Background(), d.deps.ShutdownTimeout)
	defer cancel()

	if c.poller != nil {
		if err := c.poller.Stop(); err != nil {
			d.log.Warn("Poller stop failed", logfields.Error(err))
		}
	}
	if c.batcher != nil {
		if err := c.batcher.Close(); err != nil {
			d.log.Warn("Watcher close failed", logfields.Error(err))
		}
	}
	if c.queue != nil {
		if err := c.queue.Stop(ctx); err != nil {
			d.log.Warn("Sync queue did not drain", logfields.Error(err))
		}
	}
	if c.bus != nil {
		c.bus.Close()
	}
	if c.server != nil {
		if err := c.server.Shutdown(ctx); err != nil {
			d.log.Warn("Metrics server stop failed", logfields.Error(err))
		}
	}
	if c.workers != nil {
		if err := c.workers.StopAndWait(ctx); err != nil {
			d.log.Warn("Event consumers did not exit", logfields.Error(err))
		}
	}
	if c.journal != nil && c.ownsJournal {
		if err := c.journal.Close(); err != nil {
			d.log.Warn("Journal close failed", logfields.Error(err))
		}
	}
	if c.notifier != nil && c.ownsNotifier {
		if err := c.notifier.Close(); err != nil {
			d.log.Warn("Notifier close failed", logfields.Error(err))
		}
	}
	if c.batcher != nil {
		if err := d.store.WriteStatus(c.batcher.Pending()); err != nil {
			d.log.Warn("Failed to write final status record", logfields.Error(err))
		}
	}
}
