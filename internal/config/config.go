package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// Config is the persisted daemon configuration. It is the single source of
// truth: every command loads it fresh from disk and passes it down explicitly.
type Config struct {
	RemoteURL string `yaml:"remote_url"`
	// RemoteTemplate derives remote_url on first start, e.g.
	// "git@github.com:alice/{name}.git".
	RemoteTemplate string   `yaml:"remote_template,omitempty"`
	Branch         string   `yaml:"branch"`
	SyncPaths      []string `yaml:"sync_paths,omitempty"`
	SyncInterval   int      `yaml:"sync_interval"` // seconds

	SyncRoot   string `yaml:"sync_root,omitempty"`
	StateDir   string `yaml:"state_dir,omitempty"`
	RemoteName string `yaml:"remote_name,omitempty"`
	SSHKeyPath string `yaml:"ssh_key_path,omitempty"`

	AuthorName  string `yaml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty"`

	PollBackoff RetryBackoffMode `yaml:"poll_backoff,omitempty"`

	LogFile     string `yaml:"log_file,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// DefaultPath returns ~/.ghsync.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ghsync.yaml"
	}
	return filepath.Join(home, ".ghsync.yaml")
}

// Load loads configuration from the specified file. A missing file is a
// config error: the user has to run `ghsync config` (or `start`) first.
func Load(configPath string) (*Config, error) {
	loadEnvFiles(filepath.Dir(configPath))

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, errors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns a defaulted Config when the
// file does not exist yet.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &Config{}
		if err := applyDefaults(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(configPath)
}

// Save writes the configuration to path, replacing the file atomically.
func Save(configPath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.FileSystemError("failed to create config directory").WithCause(err).
				WithContext("path", dir).
				Build()
		}
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write config file").WithCause(err).
			WithContext("path", tmp).
			Build()
	}
	if err := os.Rename(tmp, configPath); err != nil {
		_ = os.Remove(tmp)
		return errors.FileSystemError("failed to replace config file").WithCause(err).
			WithContext("path", configPath).
			Build()
	}
	return nil
}

// Interval returns SyncInterval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

// WatchPaths resolves SyncPaths against SyncRoot. With no sync paths the
// whole sync root is watched.
func (c *Config) WatchPaths() []string {
	if len(c.SyncPaths) == 0 {
		return []string{c.SyncRoot}
	}
	paths := make([]string, 0, len(c.SyncPaths))
	for _, p := range c.SyncPaths {
		p = expandHome(p)
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.SyncRoot, p)
		}
		paths = append(paths, filepath.Clean(p))
	}
	return paths
}

// HistoryPath is the location of the sync-history journal.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir, "history.db")
}

func (c *Config) String() string {
	return fmt.Sprintf("remote=%s branch=%s interval=%ds root=%s", c.RemoteURL, c.Branch, c.SyncInterval, c.SyncRoot)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
