package commands

import (
	stderrors "errors"
	"time"

	"git.home.luguber.info/inful/ghsync/internal/config"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/state"
)

// StopCmd implements the 'stop' command.
type StopCmd struct {
	Timeout time.Duration `help:"How long to wait for the daemon to exit" default:"35s"`
}

func (s *StopCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	pid, err := store.ReadPID()
	switch {
	case stderrors.Is(err, state.ErrNotRunning):
		g.Printer.Info("ghsync is not running")
		return nil
	case err != nil:
		// Unreadable marker: only safe to drop when nobody holds it.
		if rerr := store.RemoveStaleMarker(); rerr != nil {
			return err
		}
		g.Printer.Warn("Removed invalid pid file")
		return nil
	}

	locked, err := store.IsLocked()
	if err != nil {
		return err
	}
	if !locked {
		if err := store.RemoveStaleMarker(); err != nil {
			return err
		}
		g.Printer.Warn("ghsync was not running (pid %d); removed stale pid file", pid)
		return nil
	}

	if err := terminate(pid); err != nil {
		if stderrors.Is(err, errProcessGone) {
			_ = store.RemoveStaleMarker()
			g.Printer.Warn("Process %d no longer exists; removed stale pid file", pid)
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to signal daemon").
			WithContext("pid", pid).
			Build()
	}

	deadline := time.Now().Add(s.Timeout)
	for time.Now().Before(deadline) {
		if locked, err := store.IsLocked(); err == nil && !locked {
			g.Printer.Success("ghsync stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return ferrors.DaemonError("daemon did not exit in time").
		WithContext("pid", pid).
		WithContext("timeout", s.Timeout.String()).
		Build()
}
