package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon"
	"git.home.luguber.info/inful/ghsync/internal/daemon/queue"
	"git.home.luguber.info/inful/ghsync/internal/git"
)

// PushCmd implements the 'push' command: a full pull then push.
type PushCmd struct{}

func (c *PushCmd) Run(g *Global, root *CLI) error {
	rep, err := runOnce(g, root, queue.OpSync)
	if err != nil {
		return err
	}
	reportPull(g, rep)
	reportPush(g, rep)
	return nil
}

// PullCmd implements the 'pull' command.
type PullCmd struct{}

func (c *PullCmd) Run(g *Global, root *CLI) error {
	rep, err := runOnce(g, root, queue.OpPull)
	if err != nil {
		return err
	}
	reportPull(g, rep)
	return nil
}

// runOnce performs op while holding the liveness lock, so it refuses to run
// next to a daemon.
func runOnce(g *Global, root *CLI, op queue.Op) (queue.Report, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return queue.Report{}, err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newOnceDaemon(g, cfg)
	if err != nil {
		return queue.Report{}, err
	}
	return d.Once(ctx, op)
}

func newOnceDaemon(g *Global, cfg *config.Config) (*daemon.Daemon, error) {
	return daemon.New(cfg, daemon.Deps{Logger: g.Logger})
}

func reportPull(g *Global, rep queue.Report) {
	if rep.Pull == nil {
		return
	}
	switch rep.Pull.Outcome {
	case git.PullUpToDate:
		g.Printer.Success("Already up to date")
	case git.PullFastForward:
		g.Printer.Success("Fast-forwarded to %s", short(rep.Pull.To.String()))
	case git.PullReset:
		g.Printer.Warn("Local history diverged; saved it as %s and reset to %s",
			rep.Pull.BackupBranch, short(rep.Pull.To.String()))
	}
}

func reportPush(g *Global, rep queue.Report) {
	if rep.Push == nil {
		return
	}
	switch {
	case rep.Push.Committed:
		g.Printer.Success("Committed and pushed %s", short(rep.Push.Commit.String()))
	case rep.Push.Pushed:
		g.Printer.Success("Pushed local commits")
	default:
		g.Printer.Info("Nothing to push")
	}
}

func short(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
