package state

import "time"

// StatusInfo is the persisted snapshot of the change batcher.
type StatusInfo struct {
	LastSync       time.Time `json:"last_sync"`
	PendingChanges []string  `json:"pending_changes"`
}

const (
	statusFileName = "status.json"
	pidFileName    = "ghsync.pid"
)
