package metrics

import "time"

// OutcomeLabel enumerates sync cycle outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for sync cycles, the change batcher and
// the remote poller. Implementations may forward to Prometheus. All methods must
// be safe to call on the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObserveSyncDuration(op string, d time.Duration)
	IncSyncOutcome(op string, outcome OutcomeLabel)
	IncPullOutcome(outcome string) // outcome: up_to_date|fast_forward|reset
	IncBackupBranch()
	SetPendingChanges(n int)
	IncCooldownSkip()
	IncWatcherError()
	IncPollFailure(stage string) // stage: fetch|count|pull
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSyncDuration(string, time.Duration) {}
func (NoopRecorder) IncSyncOutcome(string, OutcomeLabel)       {}
func (NoopRecorder) IncPullOutcome(string)                     {}
func (NoopRecorder) IncBackupBranch()                          {}
func (NoopRecorder) SetPendingChanges(int)                     {}
func (NoopRecorder) IncCooldownSkip()                          {}
func (NoopRecorder) IncWatcherError()                          {}
func (NoopRecorder) IncPollFailure(string)                     {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
