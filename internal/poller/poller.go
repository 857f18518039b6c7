// Package poller checks the remote branch for new commits on a fixed period
// and pulls them. It also hosts the periodic full sync.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/metrics"
	"git.home.luguber.info/inful/ghsync/internal/retry"
)

// DefaultInterval is the remote poll period.
const DefaultInterval = 2 * time.Second

// Remote is the slice of the repository the poller drives.
type Remote interface {
	Fetch(ctx context.Context) error
	CountBehind() (int, error)
	Integrate() (git.PullResult, error)
	Sync(ctx context.Context) (git.SyncResult, error)
}

// Runner executes jobs exclusively against the repository.
type Runner interface {
	Do(ctx context.Context, job queue.Job) (queue.Report, error)
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	// SyncInterval schedules a full pull+push; zero disables it.
	SyncInterval time.Duration
	Policy       retry.Policy
	Now          func() time.Time
	Recorder     metrics.Recorder
	Logger       *slog.Logger
}

// Poller schedules remote polls and periodic syncs on a gocron scheduler.
type Poller struct {
	remote  Remote
	runner  Runner
	opts    Options
	log     *slog.Logger
	backoff *retry.Backoff

	mu      sync.Mutex
	sched   gocron.Scheduler
	stopped bool
}

func New(remote Remote, runner Runner, opts Options) (*Poller, error) {
	if remote == nil || runner == nil {
		return nil, ferrors.ValidationError("poller requires a remote and a runner").Build()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid poll backoff policy").Build()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Recorder = metrics.OrNoop(opts.Recorder)
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		remote:  remote,
		runner:  runner,
		opts:    opts,
		log:     opts.Logger,
		backoff: retry.NewBackoff(opts.Policy),
	}, nil
}

// Start registers the jobs and starts the scheduler. It does not block.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ferrors.DaemonError("poller already stopped").Build()
	}
	if p.sched != nil {
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create scheduler").Build()
	}

	if _, err := s.NewJob(
		gocron.DurationJob(p.opts.Interval),
		gocron.NewTask(func() { _ = p.Poll(ctx) }),
		gocron.WithName("remote-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule remote poll").Build()
	}

	if p.opts.SyncInterval > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(p.opts.SyncInterval),
			gocron.NewTask(func() { _ = p.SyncNow(ctx) }),
			gocron.WithName("periodic-sync"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = s.Shutdown()
			return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule periodic sync").Build()
		}
	}

	s.Start()
	p.sched = s
	p.log.Info("Remote poller started",
		slog.Duration("interval", p.opts.Interval),
		slog.Duration("sync_interval", p.opts.SyncInterval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to return.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.sched == nil {
		return nil
	}
	err := p.sched.Shutdown()
	p.sched = nil
	p.log.Info("Remote poller stopped")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "scheduler shutdown failed").Build()
	}
	return nil
}

// Poll runs one fetch / count / pull cycle. Failures are logged, counted, and
// back off the following polls; they are also returned for tests.
func (p *Poller) Poll(ctx context.Context) error {
	now := p.opts.Now()
	if !p.backoff.Ready(now) {
		return nil
	}

	_, err := p.runner.Do(ctx, queue.Job{
		Trigger: events.TriggerRemote,
		Op:      queue.OpPull,
		Run: func(ctx context.Context) (queue.Report, error) {
			if err := p.remote.Fetch(ctx); err != nil {
				return queue.Report{Quiet: true}, &stageError{stage: "fetch", err: err}
			}
			behind, err := p.remote.CountBehind()
			if err != nil {
				return queue.Report{Quiet: true}, &stageError{stage: "count", err: err}
			}
			if behind == 0 {
				return queue.Report{Quiet: true}, nil
			}
			p.log.Info("Remote has new commits", logfields.Behind(behind))
			res, err := p.remote.Integrate()
			if err != nil {
				return queue.Report{}, &stageError{stage: "pull", err: err}
			}
			return queue.PullReport(res), nil
		},
	})
	if err == nil {
		if n := p.backoff.Failures(); n > 0 {
			p.log.Info("Remote poll recovered", slog.Int("failures", n))
		}
		p.backoff.Success()
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrStopped) {
		return err
	}

	stage := "queue"
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	delay := p.backoff.Failure(now)
	p.opts.Recorder.IncPollFailure(stage)
	level := slog.LevelWarn
	if ce, ok := ferrors.AsClassified(err); ok && !ce.CanRetry() {
		// Bad credentials or a missing repository need the user.
		level = slog.LevelError
	}
	p.log.Log(ctx, level, "Remote poll failed",
		slog.String("stage", stage),
		slog.Int("failures", p.backoff.Failures()),
		slog.Duration("retry_in", delay),
		logfields.Error(err))
	return err
}

// SyncNow runs a full pull+push through the runner.
func (p *Poller) SyncNow(ctx context.Context) error {
	_, err := p.runner.Do(ctx, queue.SyncJob(events.TriggerPeriodic, p.remote.Sync))
	return err
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }
