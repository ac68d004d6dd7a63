// Command fsmonitordaemon is the sub-command front-end (C7): start/run/
// stop/status for the filesystem-monitor daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anthropic/fsmonitor-daemon/internal/config"
	"github.com/anthropic/fsmonitor-daemon/internal/daemon"
	"github.com/anthropic/fsmonitor-daemon/internal/ipc"
	"github.com/anthropic/fsmonitor-daemon/internal/repo"
)

func main() {
	var ipcThreads int
	var startTimeout int

	rootCmd := &cobra.Command{
		Use:   "fsmonitordaemon",
		Short: "Watch a worktree and answer which-paths-changed-since-token queries",
	}
	rootCmd.PersistentFlags().IntVar(&ipcThreads, "ipc-threads", 0, "IPC worker pool size (0: use config/default)")
	rootCmd.PersistentFlags().IntVar(&startTimeout, "start-timeout", 0, "seconds to wait for the daemon to come up (0: use config/default)")

	rootCmd.AddCommand(runCmd(&ipcThreads, &startTimeout))
	rootCmd.AddCommand(startCmd(&ipcThreads, &startTimeout))
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func flags(ipcThreads, startTimeout *int) config.Flags {
	f := config.Flags{}
	if *ipcThreads != 0 {
		f.IPCThreads = ipcThreads
	}
	if *startTimeout != 0 {
		f.StartTimeoutSeconds = startTimeout
	}
	return f
}

// resolve figures out the worktree root (from the cwd, or args[0] if
// given) and the path to the daemon's Unix socket, which lives alongside
// the repository's own metadata rather than in a user-chosen location.
func resolve(args []string) (worktree string, socketPath string, roots repo.Roots, err error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	roots, err = repo.Resolve(path)
	if err != nil {
		return "", "", repo.Roots{}, err
	}
	return roots.Worktree, filepath.Join(roots.GitDir, "fsmonitor--daemon.ipc"), roots, nil
}

func runCmd(ipcThreads, startTimeout *int) *cobra.Command {
	return &cobra.Command{
		Use:   "run [path]",
		Short: "Run the daemon in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worktree, socketPath, _, err := resolve(args)
			if err != nil {
				return err
			}

			if ipc.NewClient(socketPath).Ping() == nil {
				return fmt.Errorf("daemon already running for %s", worktree)
			}

			cfg, err := config.Load(worktree, flags(ipcThreads, startTimeout))
			if err != nil {
				return err
			}

			logger, err := zap.NewDevelopment()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			d, err := daemon.New(worktree, socketPath, cfg, logger)
			if err != nil {
				return err
			}
			return d.Run(context.Background())
		},
	}
}

func startCmd(ipcThreads, startTimeout *int) *cobra.Command {
	return &cobra.Command{
		Use:   "start [path]",
		Short: "Start the daemon in the background and wait for it to come up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worktree, socketPath, roots, err := resolve(args)
			if err != nil {
				return err
			}

			if ipc.NewClient(socketPath).Ping() == nil {
				fmt.Println("daemon already running")
				return nil
			}
			_ = os.Remove(socketPath) // stale socket from a prior crash

			cfg, err := config.Load(worktree, flags(ipcThreads, startTimeout))
			if err != nil {
				return err
			}

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable path: %w", err)
			}

			logPath := filepath.Join(roots.GitDir, "fsmonitor--daemon.log")
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()

			proc := exec.Command(self, "run", worktree)
			proc.Stdout = logFile
			proc.Stderr = logFile
			proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := proc.Start(); err != nil {
				return fmt.Errorf("spawn daemon: %w", err)
			}
			_ = proc.Process.Release()

			deadline := time.Now().Add(time.Duration(cfg.StartTimeoutSeconds) * time.Second)
			client := ipc.NewClient(socketPath)
			for time.Now().Before(deadline) {
				if client.Ping() == nil {
					fmt.Println("daemon started")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("daemon did not come up within %ds", cfg.StartTimeoutSeconds)
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [path]",
		Short: "Stop the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, socketPath, _, err := resolve(args)
			if err != nil {
				return err
			}

			client := ipc.NewClient(socketPath)
			if client.Ping() != nil {
				fmt.Println("daemon not running")
				return nil
			}
			if err := client.Quit(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}

			for i := 0; i < 50; i++ {
				if client.Ping() != nil {
					fmt.Println("daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("daemon did not stop within 5s")
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Report whether the daemon is running",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, socketPath, _, err := resolve(args)
			if err != nil {
				return err
			}

			if err := ipc.NewClient(socketPath).Ping(); err != nil {
				fmt.Println("not running")
				os.Exit(1)
			}
			fmt.Println("running")
			return nil
		},
	}
}
