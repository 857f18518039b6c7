package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath       = "path"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyRemote     = "remote"
	KeyCycleID    = "cycle_id"
	KeyTrigger    = "trigger"
	KeyOp         = "op"
	KeyOutcome    = "outcome"
	KeyDurationMS = "duration_ms"
	KeyPending    = "pending"
	KeyBehind     = "behind"
	KeyBackup     = "backup_branch"
	KeyPID        = "pid"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func Remote(r string) slog.Attr       { return slog.String(KeyRemote, r) }
func CycleID(id string) slog.Attr     { return slog.String(KeyCycleID, id) }
func Trigger(t string) slog.Attr      { return slog.String(KeyTrigger, t) }
func Op(o string) slog.Attr           { return slog.String(KeyOp, o) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Pending(n int) slog.Attr         { return slog.Int(KeyPending, n) }
func Behind(n int) slog.Attr          { return slog.Int(KeyBehind, n) }
func BackupBranch(b string) slog.Attr { return slog.String(KeyBackup, b) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }

// Duration records d in milliseconds under the canonical key.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
