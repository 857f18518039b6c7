package commands

import (
	"strings"

	"git.home.luguber.info/inful/ghsync/internal/config"
)

// ConfigCmd implements the 'config' command. Without flags it prints the
// current configuration.
type ConfigCmd struct {
	Remote   string   `help:"Remote repository SSH URL (git@host:owner/repo.git)"`
	Branch   string   `help:"Branch to sync"`
	Paths    []string `help:"Comma-separated paths to watch, relative to the sync root" sep:","`
	Interval int      `help:"Full sync interval in seconds (minimum 5)"`
}

func (c *ConfigCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}

	changed := c.apply(cfg)
	if changed {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(root.Config, cfg); err != nil {
			return err
		}
		g.Printer.Success("Configuration saved to %s", root.Config)
	}

	p := g.Printer
	p.Header("Configuration")
	remote := cfg.RemoteURL
	if remote == "" {
		remote = "(not set)"
	}
	p.Field("Remote", remote)
	p.Field("Branch", cfg.Branch)
	p.Field("Sync interval", cfg.SyncInterval)
	paths := "(sync root)"
	if len(cfg.SyncPaths) > 0 {
		paths = strings.Join(cfg.SyncPaths, ", ")
	}
	p.Field("Sync paths", paths)
	p.Field("Sync root", cfg.SyncRoot)
	if cfg.SSHKeyPath != "" {
		p.Field("SSH key", cfg.SSHKeyPath)
	}
	return nil
}

func (c *ConfigCmd) apply(cfg *config.Config) bool {
	changed := false
	if c.Remote != "" {
		cfg.RemoteURL = strings.TrimSpace(c.Remote)
		changed = true
	}
	if c.Branch != "" {
		cfg.Branch = strings.TrimSpace(c.Branch)
		changed = true
	}
	if len(c.Paths) > 0 {
		paths := make([]string, 0, len(c.Paths))
		for _, p := range c.Paths {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.SyncPaths = paths
		changed = true
	}
	if c.Interval != 0 {
		cfg.SyncInterval = c.Interval
		changed = true
	}
	return changed
}
