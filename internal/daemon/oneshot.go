package daemon

import (
	"context"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

// Once runs a single manual operation against the sync root. It takes the
// liveness lock for the duration, so it fails with "already running" while a
// daemon owns the sync root. The operation is recorded in the sync journal.
func (d *Daemon) Once(ctx context.Context, op queue.Op) (queue.Report, error) {
	if d.Status() != StatusStopped {
		return queue.Report{}, ferrors.DaemonError("daemon already started").Build()
	}
	if err := d.store.AcquireLock(); err != nil {
		return queue.Report{}, err
	}
	c := &components{}
	defer func() {
		d.shutdown(c)
		if err := d.store.ReleaseLock(); err != nil {
			d.log.Warn("Failed to release liveness marker", logfields.Error(err))
		}
	}()

	repo, err := d.openRepository()
	if err != nil {
		return queue.Report{}, err
	}
	c.repo = repo
	d.openJournal(ctx, c)
	d.openNotifier(c)

	c.bus = events.NewBus()
	c.queue = queue.New(queue.Options{Bus: c.bus, Branch: d.cfg.Branch, Logger: d.deps.Logger, Now: d.deps.Now})
	c.queue.Start()
	c.workers = NewWorkerGroup(d.deps.Logger)
	d.startConsumers(ctx, c)

	var job queue.Job
	switch op {
	case queue.OpSync:
		job = queue.SyncJob(events.TriggerManual, repo.Sync)
	case queue.OpPull:
		job = queue.PullJob(events.TriggerManual, repo.Pull)
	case queue.OpPush:
		job = queue.PushJob(events.TriggerManual, repo.Push)
	default:
		return queue.Report{}, ferrors.ValidationError("unknown sync operation").
			WithContext("op", string(op)).
			Build()
	}
	return c.queue.Do(ctx, job)
}
