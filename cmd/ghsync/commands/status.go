package commands

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/state"
	"git.home.luguber.info/inful/ghsync/internal/ui"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	Fetch bool `help:"Fetch from the remote before counting ahead/behind"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	p := g.Printer
	p.Header("ghsync status")

	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}

	locked, err := store.IsLocked()
	if err != nil {
		return err
	}
	pid, pidErr := store.ReadPID()
	switch {
	case locked && pidErr == nil:
		p.Success("Daemon is running (pid %d)", pid)
	case locked:
		p.Success("Daemon is running")
	case pidErr == nil:
		p.Warn("Daemon is not running (stale pid file for %d)", pid)
	default:
		p.Error("Daemon is not running")
	}

	p.Header("Configuration")
	remote := cfg.RemoteURL
	if remote == "" {
		remote = "(not set)"
	}
	p.Field("Remote", remote)
	p.Field("Branch", cfg.Branch)
	p.Field("Sync interval", (time.Duration(cfg.SyncInterval) * time.Second).String())
	p.Field("Sync root", cfg.SyncRoot)
	p.Field("Watched paths", strings.Join(cfg.WatchPaths(), ", "))

	info, err := store.ReadStatus()
	switch {
	case stderrors.Is(err, state.ErrNoStatus):
		p.Info("No sync status recorded yet")
	case err != nil:
		p.Warn("Could not read sync status: %v", err)
	default:
		p.Header("Sync status")
		p.Field("Last sync", info.LastSync.Local().Format("2006-01-02 15:04:05"))
		p.Field("Pending changes", len(info.PendingChanges))
		for _, change := range info.PendingChanges {
			p.Pending(change)
		}
	}

	if cfg.RemoteURL == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(cfg.SyncRoot, ".git")); err != nil {
		p.Info("Sync root is not initialized yet")
		return nil
	}
	repo, err := git.OpenExisting(cfg.SyncRoot, cfg.RemoteURL, cfg.Branch, git.Options{
		RemoteName: cfg.RemoteName,
		Auth:       auth.NewManager(cfg.SSHKeyPath),
		Logger:     g.Logger,
	})
	if err != nil {
		p.Warn("Could not open repository: %v", err)
		return nil
	}
	if s.Fetch {
		s.fetch(p, store, repo)
	}
	ahead, behind, err := repo.AheadBehind()
	if err != nil {
		p.Warn("Could not compare with remote: %v", err)
		return nil
	}
	p.Header("Git status")
	switch {
	case ahead == 0 && behind == 0:
		p.Success("Up to date with %s/%s", cfg.RemoteName, cfg.Branch)
	default:
		if ahead > 0 {
			p.Field("Commits ahead of remote", ahead)
		}
		if behind > 0 {
			p.Field("Commits behind remote", behind)
		}
	}
	return nil
}

// fetch refreshes the tracking branch while holding the daemon lock, so it
// never races a running daemon.
func (s *StatusCmd) fetch(p *ui.Printer, store *state.Store, repo *git.Repository) {
	if err := store.AcquireLock(); err != nil {
		if stderrors.Is(err, state.ErrAlreadyRunning) {
			p.Info("Daemon is running; skipped fetch, showing last fetched state")
			return
		}
		p.Warn("Fetch skipped: %v", err)
		return
	}
	defer func() { _ = store.ReleaseLock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.Fetch(ctx); err != nil {
		p.Warn("Fetch failed: %v", err)
	}
}
