package config

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

const (
	DefaultBranch       = "main"
	DefaultSyncInterval = 300
	MinSyncInterval     = 5
	DefaultRemoteName   = "origin"
	DefaultAuthorName   = "ghsync"
	DefaultAuthorEmail  = "ghsync@localhost"
	DefaultNATSSubject  = "ghsync.sync"
)

func applyDefaults(cfg *Config) error {
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.RemoteName == "" {
		cfg.RemoteName = DefaultRemoteName
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = DefaultAuthorName
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = DefaultAuthorEmail
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = DefaultNATSSubject
	}
	if mode := NormalizeRetryBackoff(string(cfg.PollBackoff)); mode != "" {
		cfg.PollBackoff = mode
	} else {
		cfg.PollBackoff = RetryBackoffExponential
	}

	home, err := os.UserHomeDir()
	if err != nil && (cfg.SyncRoot == "" || cfg.StateDir == "") {
		return errors.WrapError(err, errors.CategoryConfig, "cannot resolve home directory").Build()
	}
	if cfg.SyncRoot == "" {
		cfg.SyncRoot = filepath.Join(home, ".ghsync")
	}
	cfg.SyncRoot = expandHome(cfg.SyncRoot)

	// The state directory must stay outside the watched tree.
	if cfg.StateDir == "" {
		base := os.Getenv("XDG_STATE_HOME")
		if base == "" {
			base = filepath.Join(home, ".local", "state")
		}
		cfg.StateDir = filepath.Join(base, "ghsync")
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.SSHKeyPath = expandHome(cfg.SSHKeyPath)
	cfg.LogFile = expandHome(cfg.LogFile)
	return nil
}
