package commands

import (
	"path/filepath"

	"git.home.luguber.info/inful/ghsync/internal/auth/providers"
	"git.home.luguber.info/inful/ghsync/internal/config"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// AuthCmd implements the 'auth' command. Without --key the SSH agent is used.
type AuthCmd struct {
	Key   string `help:"Private key file to use instead of the SSH agent" type:"path"`
	Agent bool   `help:"Forget the key file and use the SSH agent again"`
}

func (a *AuthCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return err
	}

	switch {
	case a.Agent:
		cfg.SSHKeyPath = ""
	case a.Key != "":
		key, err := filepath.Abs(a.Key)
		if err != nil {
			key = a.Key
		}
		if err := providers.NewSSHKeyProvider(key).ValidateConfig(); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryAuth, "unusable SSH key").
				WithContext("path", key).
				Build()
		}
		cfg.SSHKeyPath = key
	default:
		if cfg.SSHKeyPath == "" {
			g.Printer.Info("Using the SSH agent")
		} else {
			g.Printer.Info("Using SSH key %s", cfg.SSHKeyPath)
		}
		return nil
	}

	if err := config.Save(root.Config, cfg); err != nil {
		return err
	}
	if cfg.SSHKeyPath == "" {
		g.Printer.Success("Using the SSH agent")
	} else {
		g.Printer.Success("Using SSH key %s", cfg.SSHKeyPath)
	}
	return nil
}
