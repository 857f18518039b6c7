package queue

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
	"git.home.luguber.info/inful/ghsync/internal/git"
)

// Op names the repository operation a job performs.
type Op string

const (
	OpSync Op = "sync"
	OpPull Op = "pull"
	OpPush Op = "push"
)

// Report is what a job tells the queue about its effect on the repository.
type Report struct {
	Pull *git.PullResult
	Push *git.PushResult
	Head string

	// Quiet marks a job that changed nothing; it is logged at debug level and
	// not published.
	Quiet bool
}

// Job is a unit of repository work. Run executes on the queue worker only.
type Job struct {
	Trigger events.Trigger
	Op      Op
	Run     func(ctx context.Context) (Report, error)
}

// PullReport builds a Report for a pull result.
func PullReport(res git.PullResult) Report {
	return Report{
		Pull:  &res,
		Head:  hashString(res.To),
		Quiet: res.Outcome == git.PullUpToDate,
	}
}

// PushReport builds a Report for a push result.
func PushReport(res git.PushResult) Report {
	rep := Report{Push: &res, Quiet: !res.Committed && !res.Pushed}
	if res.Committed {
		rep.Head = hashString(res.Commit)
	}
	return rep
}

// SyncReport builds a Report for a full pull+push cycle.
func SyncReport(res git.SyncResult) Report {
	pull, push := PullReport(res.Pull), PushReport(res.Push)
	rep := Report{
		Pull:  pull.Pull,
		Push:  push.Push,
		Head:  pull.Head,
		Quiet: pull.Quiet && push.Quiet,
	}
	if push.Head != "" {
		rep.Head = push.Head
	}
	return rep
}

func hashString(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}

// SyncJob wraps a pull+push, typically Repository.Sync. A failed sync is
// never quiet.
func SyncJob(trigger events.Trigger, sync func(context.Context) (git.SyncResult, error)) Job {
	return Job{Trigger: trigger, Op: OpSync, Run: func(ctx context.Context) (Report, error) {
		res, err := sync(ctx)
		rep := SyncReport(res)
		if err != nil {
			rep.Quiet = false
		}
		return rep, err
	}}
}

// PullJob wraps Repository.Pull.
func PullJob(trigger events.Trigger, pull func(context.Context) (git.PullResult, error)) Job {
	return Job{Trigger: trigger, Op: OpPull, Run: func(ctx context.Context) (Report, error) {
		res, err := pull(ctx)
		rep := PullReport(res)
		if err != nil {
			rep.Quiet = false
		}
		return rep, err
	}}
}

// PushJob wraps Repository.Push.
func PushJob(trigger events.Trigger, push func(context.Context) (git.PushResult, error)) Job {
	return Job{Trigger: trigger, Op: OpPush, Run: func(ctx context.Context) (Report, error) {
		res, err := push(ctx)
		rep := PushReport(res)
		if err != nil {
			rep.Quiet = false
		}
		return rep, err
	}}
}
