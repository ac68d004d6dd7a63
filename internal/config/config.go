// Package config resolves the daemon's two recognised settings,
// fsmonitor.ipcthreads and fsmonitor.starttimeout (spec §6), from the
// worktree's .git/config, then applies any CLI flag overrides.
//
// Parsing itself is an external collaborator per spec §1 ("Configuration
// parsing... deferred to the host app's default handler" for any other
// key); we only ever read the [fsmonitor] section and leave the rest of
// the file untouched, using the same ini-format reader go-git itself uses
// for .git/config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	gitconfig "github.com/go-git/go-git/v5/plumbing/format/config"
)

const (
	// DefaultIPCThreads is fsmonitor.ipcthreads' default (spec §6).
	DefaultIPCThreads = 8
	// DefaultStartTimeoutSeconds is fsmonitor.starttimeout's default (spec §6).
	DefaultStartTimeoutSeconds = 60

	section        = "fsmonitor"
	keyIPCThreads  = "ipcthreads"
	keyStartTimeout = "starttimeout"
)

// Config holds the daemon's resolved, validated settings.
type Config struct {
	IPCThreads         int
	StartTimeoutSeconds int
}

// Flags carries CLI-flag overrides (spec §6: --ipc-threads, --start-timeout).
// A nil pointer means "flag not set, defer to config file / default".
type Flags struct {
	IPCThreads         *int
	StartTimeoutSeconds *int
}

// Load resolves settings for the repository at worktreeRoot: start from
// the built-in defaults, apply .git/config's [fsmonitor] section if
// present and parseable, then apply flags, then validate (spec §7
// "Configuration" error kind: invalid thread count or timeout refuses to
// start).
func Load(worktreeRoot string, flags Flags) (*Config, error) {
	cfg := &Config{
		IPCThreads:          DefaultIPCThreads,
		StartTimeoutSeconds: DefaultStartTimeoutSeconds,
	}

	if err := applyGitConfig(cfg, worktreeRoot); err != nil {
		return nil, err
	}

	if flags.IPCThreads != nil {
		cfg.IPCThreads = *flags.IPCThreads
	}
	if flags.StartTimeoutSeconds != nil {
		cfg.StartTimeoutSeconds = *flags.StartTimeoutSeconds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces spec §6's flag constraints: ipc-threads >= 1,
// start-timeout >= 0.
func (c *Config) Validate() error {
	if c.IPCThreads < 1 {
		return fmt.Errorf("fsmonitor.ipcthreads must be >= 1, got %d", c.IPCThreads)
	}
	if c.StartTimeoutSeconds < 0 {
		return fmt.Errorf("fsmonitor.starttimeout must be >= 0, got %d", c.StartTimeoutSeconds)
	}
	return nil
}

// applyGitConfig reads <worktreeRoot>/.git/config (if present) and
// overlays its [fsmonitor] section onto cfg. A missing file is not an
// error -- there's simply nothing to override.
func applyGitConfig(cfg *Config, worktreeRoot string) error {
	path := filepath.Join(worktreeRoot, ".git", "config")
	f, err := os.Open(path)
	if err != nil {
		// ENOTDIR: .git is a gitfile (separate gitdir), so there is no
		// <worktreeRoot>/.git/config to read.
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	decoded := gitconfig.New()
	if err := gitconfig.NewDecoder(f).Decode(decoded); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if !decoded.HasSection(section) {
		return nil
	}

	if v := decoded.GetOption(section, gitconfig.NoSubsection, keyIPCThreads); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", section, keyIPCThreads, err)
		}
		cfg.IPCThreads = n
	}
	if v := decoded.GetOption(section, gitconfig.NoSubsection, keyStartTimeout); v != "" {
		n, err := parseNonNegativeInt(v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", section, keyStartTimeout, err)
		}
		cfg.StartTimeoutSeconds = n
	}
	return nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be >= 1, got %d", n)
	}
	return n, nil
}

func parseNonNegativeInt(s string) (int, error) {
	n, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be >= 0, got %d", n)
	}
	return n, nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}
