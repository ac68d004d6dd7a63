package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeGitConfig(t *testing.T, worktree, body string) {
	t.Helper()
	gitDir := filepath.Join(worktree, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "config"), []byte(body), 0o644))
}

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, Flags{})
	require.NoError(t, err)
	require.Equal(t, DefaultIPCThreads, cfg.IPCThreads)
	require.Equal(t, DefaultStartTimeoutSeconds, cfg.StartTimeoutSeconds)
}

func TestLoadReadsFsmonitorSection(t *testing.T) {
	dir := t.TempDir()
	writeGitConfig(t, dir, "[fsmonitor]\n\tipcthreads = 3\n\tstarttimeout = 10\n")

	cfg, err := Load(dir, Flags{})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.IPCThreads)
	require.Equal(t, 10, cfg.StartTimeoutSeconds)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeGitConfig(t, dir, "[fsmonitor]\n\tipcthreads = 3\n")

	threads := 16
	cfg, err := Load(dir, Flags{IPCThreads: &threads})
	require.NoError(t, err)
	require.Equal(t, 16, cfg.IPCThreads)
}

func TestLoadRejectsZeroThreads(t *testing.T) {
	dir := t.TempDir()
	threads := 0
	_, err := Load(dir, Flags{IPCThreads: &threads})
	require.Error(t, err)
}

func TestLoadRejectsNegativeTimeout(t *testing.T) {
	dir := t.TempDir()
	timeout := -1
	_, err := Load(dir, Flags{StartTimeoutSeconds: &timeout})
	require.Error(t, err)
}
