package config

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// Validate checks the invariants every command relies on. An empty remote is
// allowed here because `start` provisions one; use ValidateForSync before
// the first reconciliation.
func (c *Config) Validate() error {
	if c.RemoteURL != "" && !IsSSHURL(c.RemoteURL) {
		return errors.ValidationError("remote_url must be an SSH URL (git@host:owner/repo.git)").
			WithContext("remote_url", c.RemoteURL).
			Build()
	}
	if strings.TrimSpace(c.Branch) == "" {
		return errors.ValidationError("branch must not be empty").Build()
	}
	if c.SyncInterval < MinSyncInterval {
		return errors.ValidationError("sync_interval must be at least 5 seconds").
			WithContext("sync_interval", c.SyncInterval).
			Build()
	}
	for _, p := range c.WatchPaths() {
		if isWithin(c.StateDir, p) {
			return errors.ValidationError("state_dir must not be inside a watched path").
				WithContext("state_dir", c.StateDir).
				WithContext("path", p).
				Build()
		}
	}
	return nil
}

// ValidateForSync additionally requires a configured remote.
func (c *Config) ValidateForSync() error {
	if c.RemoteURL == "" {
		return errors.ConfigError("remote_url is not set; run `ghsync config --remote`").Build()
	}
	return c.Validate()
}

// IsSSHURL reports whether url uses the scp-like `git@host:path` form or an
// ssh:// URL.
func IsSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") {
		return len(url) > len("ssh://")
	}
	if !strings.HasPrefix(url, "git@") {
		return false
	}
	host, path, ok := strings.Cut(strings.TrimPrefix(url, "git@"), ":")
	return ok && host != "" && path != ""
}

func isWithin(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
