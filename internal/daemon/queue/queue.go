package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/observability"
)

const publishTimeout = 5 * time.Second

// Outcome labels for SyncCompleted.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// ErrStopped is returned by Do once Stop was called.
var ErrStopped = errors.New("sync queue stopped")

// Options configures a SyncQueue.
type Options struct {
	Bus    *events.Bus // optional
	Branch string
	// Logger should come from observability.NewLogger; job records carry
	// the cycle fields through the job context.
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

type request struct {
	ctx     context.Context
	job     Job
	cycleID string
	done    chan response
}

type response struct {
	report Report
	err    error
}

// SyncQueue runs repository jobs one at a time on a single worker goroutine.
// Callers block in Do until their job has finished.
type SyncQueue struct {
	opts Options
	log  *slog.Logger
	jobs chan *request

	stopOnce sync.Once
	stopChan chan struct{}
	exited   chan struct{}

	mu           sync.Mutex
	started      bool
	cancelActive context.CancelFunc
}

func New(opts Options) *SyncQueue {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &SyncQueue{
		opts:     opts,
		log:      opts.Logger,
		jobs:     make(chan *request),
		stopChan: make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (q *SyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	go q.worker()
}

// Do submits job and waits for its result. If ctx ends first Do returns
// ctx.Err() while the job, once started, runs to completion.
func (q *SyncQueue) Do(ctx context.Context, job Job) (Report, error) {
	if job.Run == nil {
		return Report{}, ferrors.ValidationError("sync job has no run function").Build()
	}
	req := &request{ctx: ctx, job: job, cycleID: q.opts.NewID(), done: make(chan response, 1)}

	select {
	case q.jobs <- req:
	case <-q.stopChan:
		return Report{}, rejected(job)
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}

	select {
	case resp := <-req.done:
		return resp.report, resp.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Stop rejects new jobs and waits for the running one, bounded by ctx. When ctx
// expires first the running job is cancelled.
func (q *SyncQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopChan) })

	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-q.exited:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		if q.cancelActive != nil {
			q.cancelActive()
		}
		q.mu.Unlock()
		q.log.Warn("Sync queue stop timed out; cancelled running job")
		return ctx.Err()
	}
}

func (q *SyncQueue) worker() {
	defer close(q.exited)
	for {
		select {
		case <-q.stopChan:
			return
		case req := <-q.jobs:
			req.done <- q.handle(req)
		}
	}
}

// handle runs req unless Stop was called after the worker picked it up.
func (q *SyncQueue) handle(req *request) response {
	select {
	case <-q.stopChan:
		return response{err: rejected(req.job)}
	default:
		return q.run(req)
	}
}

func rejected(job Job) error {
	return ferrors.WrapError(ErrStopped, ferrors.CategoryDaemon, "sync job rejected").
		WithContext("op", string(job.Op)).Build()
}

func (q *SyncQueue) run(req *request) response {
	// Shutdown cancels callers' contexts; a started job still finishes unless
	// Stop gives up on it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(req.ctx))
	ctx = observability.WithCycle(ctx, req.cycleID, string(req.job.Trigger), string(req.job.Op))
	q.mu.Lock()
	q.cancelActive = cancel
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.cancelActive = nil
		q.mu.Unlock()
		cancel()
	}()

	started := q.opts.Now()
	report, err := q.safeRun(ctx, req.job)
	elapsed := q.opts.Now().Sub(started)

	outcome := OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = OutcomeCanceled
	default:
		outcome = OutcomeFailed
	}

	attrs := []any{logfields.Outcome(outcome), logfields.Duration(elapsed)}
	switch {
	case err != nil && !report.Quiet:
		q.log.ErrorContext(ctx, "Sync job failed", append(attrs, logfields.Error(err))...)
	case err != nil:
		q.log.DebugContext(ctx, "Sync job failed", append(attrs, logfields.Error(err))...)
	case report.Quiet:
		q.log.DebugContext(ctx, "Sync job completed", attrs...)
	default:
		q.log.InfoContext(ctx, "Sync job completed", attrs...)
	}

	if !report.Quiet {
		q.publish(ctx, q.completed(req, report, started, elapsed, outcome, err))
		if report.Pull != nil && report.Pull.BackupBranch != "" {
			q.publish(ctx, events.BackupCreated{
				CycleID:   req.cycleID,
				Branch:    q.opts.Branch,
				Backup:    report.Pull.BackupBranch,
				From:      report.Pull.From.String(),
				To:        report.Pull.To.String(),
				CreatedAt: started,
			})
		}
	}
	return response{report: report, err: err}
}

func (q *SyncQueue) safeRun(ctx context.Context, job Job) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.InternalError("sync job panicked").
				WithContext("op", string(job.Op)).
				WithContext("panic", r).
				Build()
		}
	}()
	return job.Run(ctx)
}

func (q *SyncQueue) completed(req *request, report Report, started time.Time, elapsed time.Duration, outcome string, err error) events.SyncCompleted {
	evt := events.SyncCompleted{
		CycleID:   req.cycleID,
		Trigger:   req.job.Trigger,
		Op:        string(req.job.Op),
		Branch:    q.opts.Branch,
		StartedAt: started,
		Duration:  elapsed,
		Outcome:   outcome,
		Head:      report.Head,
	}
	if report.Pull != nil {
		evt.PullOutcome = string(report.Pull.Outcome)
		evt.BackupBranch = report.Pull.BackupBranch
	}
	if report.Push != nil {
		evt.Committed = report.Push.Committed
		evt.Pushed = report.Push.Pushed
	}
	if err != nil {
		evt.Error = err.Error()
	}
	return evt
}

func (q *SyncQueue) publish(ctx context.Context, evt events.Event) {
	if q.opts.Bus == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := q.opts.Bus.Publish(pctx, evt); err != nil {
		q.log.Warn("Failed to publish sync event", slog.String("event", evt.EventName()), logfields.Error(err))
	}
}
