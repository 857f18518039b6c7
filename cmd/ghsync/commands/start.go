package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/ghsync/internal/auth"
	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/daemon"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/observability"
	"git.home.luguber.info/inful/ghsync/internal/provision"
)

// StartCmd implements the 'start' command.
type StartCmd struct {
	Name string `help:"Repository name used to derive remote_url from remote_template" default:"ghsync"`
}

func (s *StartCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}
	if cfg.RemoteURL == "" {
		if err := s.provision(ctx, g, root.Config, cfg); err != nil {
			return err
		}
	}
	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	logger, closer, err := observability.NewLogger(observability.LoggerOptions{
		Level: root.level(),
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	d, err := daemon.New(cfg, daemon.Deps{Logger: logger})
	if err != nil {
		return err
	}
	g.Printer.Success("ghsync started (pid %d), syncing %s with %s", os.Getpid(), cfg.SyncRoot, cfg.RemoteURL)
	if err := d.Run(ctx); err != nil {
		return err
	}
	g.Printer.Info("ghsync stopped")
	return nil
}

// provision derives the remote from remote_template and persists it.
func (s *StartCmd) provision(ctx context.Context, g *Global, path string, cfg *config.Config) error {
	p := &provision.TemplateProvisioner{
		Template: cfg.RemoteTemplate,
		Auth:     auth.NewManager(cfg.SSHKeyPath),
	}
	url, err := p.EnsureRepository(ctx, s.Name)
	if err != nil {
		return err
	}
	cfg.RemoteURL = url
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	g.Logger.Info("Provisioned remote", logfields.Remote(url), slog.String("name", s.Name))
	return nil
}
