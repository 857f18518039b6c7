package events

import "time"

// Trigger names what caused a sync queue job.
type Trigger string

const (
	TriggerLocal    Trigger = "local"    // change batcher
	TriggerRemote   Trigger = "remote"   // remote poller found new commits
	TriggerInitial  Trigger = "initial"  // daemon startup
	TriggerPeriodic Trigger = "periodic" // sync_interval job
	TriggerManual   Trigger = "manual"   // push/pull commands
)

// Event is implemented by every event the daemon publishes, so consumers that
// forward everything (the NATS notifier) can subscribe once.
type Event interface {
	EventName() string
}

// SyncCompleted is published by the sync queue after each job that touched the
// repository. Error is empty on success.
type SyncCompleted struct {
	CycleID      string        `json:"cycle_id"`
	Trigger      Trigger       `json:"trigger"`
	Op           string        `json:"op"`
	Branch       string        `json:"branch"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Outcome      string        `json:"outcome"`
	PullOutcome  string        `json:"pull_outcome,omitempty"`
	BackupBranch string        `json:"backup_branch,omitempty"`
	Committed    bool          `json:"committed"`
	Pushed       bool          `json:"pushed"`
	Head         string        `json:"head,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (SyncCompleted) EventName() string { return "sync_completed" }

// BackupCreated is published when a diverged pull moved the previous local
// history onto a backup branch before resetting.
type BackupCreated struct {
	CycleID   string    `json:"cycle_id"`
	Branch    string    `json:"branch"`
	Backup    string    `json:"backup_branch"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

func (BackupCreated) EventName() string { return "backup_created" }
