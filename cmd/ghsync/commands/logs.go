package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/eventstore"
	"git.home.luguber.info/inful/ghsync/internal/git"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
)

// LogsCmd implements the 'logs' command.
type LogsCmd struct {
	N int `short:"n" help:"Number of entries to show" default:"20"`
}

func (l *LogsCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	shown, err := l.journal(g, cfg)
	if err != nil {
		g.Logger.Debug("Sync journal unavailable", logfields.Error(err))
	}
	if shown > 0 {
		return nil
	}
	return l.commits(g, cfg)
}

// journal prints sync history rows, newest first.
func (l *LogsCmd) journal(g *Global, cfg *config.Config) (int, error) {
	if _, err := os.Stat(cfg.HistoryPath()); err != nil {
		return 0, err
	}
	store, err := eventstore.NewSQLiteStore(cfg.HistoryPath())
	if err != nil {
		return 0, err
	}
	defer func() { _ = store.Close() }()

	rows, err := store.Recent(context.Background(), l.N)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	g.Printer.Header("Sync history")
	for _, row := range rows {
		if row.Type() != eventstore.TypeSyncCompleted {
			g.Printer.Warn("%s  backup branch %s created", row.Timestamp().Local().Format("2006-01-02 15:04:05"), row.Metadata()["backup_branch"])
			continue
		}
		evt, err := eventstore.DecodeSyncCompleted(row)
		if err != nil {
			continue
		}
		line := fmt.Sprintf("%s  %-8s %-4s %s", evt.StartedAt.Local().Format("2006-01-02 15:04:05"), evt.Trigger, evt.Op, evt.Duration.Round(time.Millisecond))
		if evt.Head != "" {
			line += "  " + short(evt.Head)
		}
		switch {
		case evt.Error != "":
			g.Printer.Error("%s  %s", line, evt.Error)
		case evt.BackupBranch != "":
			g.Printer.Warn("%s  diverged, backup %s", line, evt.BackupBranch)
		default:
			g.Printer.Success("%s", line)
		}
	}
	return len(rows), nil
}

// commits falls back to the repository's commit log.
func (l *LogsCmd) commits(g *Global, cfg *config.Config) error {
	if _, err := os.Stat(filepath.Join(cfg.SyncRoot, ".git")); err != nil {
		g.Printer.Info("No sync history yet")
		return nil
	}
	repo, err := git.OpenExisting(cfg.SyncRoot, cfg.RemoteURL, cfg.Branch, git.Options{
		RemoteName: cfg.RemoteName,
		Auth:       auth.NewManager(cfg.SSHKeyPath),
		Logger:     g.Logger,
	})
	if err != nil {
		return err
	}
	history, err := repo.History(l.N)
	if err != nil {
		return err
	}
	g.Printer.Header("Recent commits")
	for _, c := range history {
		g.Printer.Info("%s  %s  %s  %s", short(c.Hash), c.When.Local().Format("2006-01-02 15:04:05"), c.Author, c.Message)
	}
	return nil
}
