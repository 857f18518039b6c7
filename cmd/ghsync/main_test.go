package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/ghsync/internal/config"
)

func TestRun_ConfigExitCodes(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	path := filepath.Join(home, "ghsync.yaml")

	assert.Equal(t, 0, run([]string{"-c", path, "config", "--remote", "git@github.com:alice/notes.git", "--interval", "30"}))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.SyncInterval)

	assert.Equal(t, 1, run([]string{"-c", path, "config", "--interval", "1"}))
	assert.Equal(t, 1, run([]string{"-c", path, "config", "--remote", "https://example.com/notes.git"}))
	assert.Equal(t, 1, run([]string{"-c", path, "no-such-command"}))
}

func TestRun_StatusWithoutDaemon(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))

	assert.Equal(t, 0, run([]string{"-c", filepath.Join(home, "ghsync.yaml"), "status"}))
}
