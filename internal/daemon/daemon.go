// Package daemon implements the Daemon Controller (C6): the boot/shutdown
// ordering that ties the batch log, listener, and IPC server together into
// one process lifecycle (spec §4.6).
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/anthropic/fsmonitor-daemon/internal/batchlog"
	"github.com/anthropic/fsmonitor-daemon/internal/config"
	"github.com/anthropic/fsmonitor-daemon/internal/cookie"
	"github.com/anthropic/fsmonitor-daemon/internal/ipc"
	"github.com/anthropic/fsmonitor-daemon/internal/listener"
	"github.com/anthropic/fsmonitor-daemon/internal/repo"
)

// Daemon owns one daemon process's lifetime: mint the batch log, start the
// listener and the IPC server, and tear both down in order on shutdown.
type Daemon struct {
	cfg        *config.Config
	socketPath string
	logger     *zap.Logger

	roots   repo.Roots
	batch   *batchlog.Log
	cookies *cookie.Registry
	lst     *listener.Listener
	ipcSrv  *ipc.Server

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New resolves the repository roots at worktreePath and wires together the
// batch log, listener, and IPC server, but starts nothing yet.
func New(worktreePath, socketPath string, cfg *config.Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	roots, err := repo.Resolve(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository roots: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		socketPath: socketPath,
		logger:     logger,
		roots:      roots,
		batch:      batchlog.New(logger),
		cookies:    cookie.New(),
	}

	gitDirRoot := ""
	if roots.Separate {
		gitDirRoot = roots.GitDir
	}
	d.lst = listener.New(roots.Worktree, gitDirRoot, d.batch, d.cookies, logger)
	d.ipcSrv = ipc.NewServer(cfg.IPCThreads, d.batch, d, logger)

	return d, nil
}

// Run starts the listener and IPC server and blocks until a shutdown
// signal (SIGTERM/SIGINT), an IPC "quit" command, or an unrecoverable
// component error, then tears everything down in order (spec §4.6).
func (d *Daemon) Run(parent context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon: already running")
	}
	d.running = true
	d.mu.Unlock()

	ctx, cancel := signalContext(parent)
	d.mu.Lock()
	d.ctx = ctx
	d.cancel = cancel
	d.mu.Unlock()

	ipcErrCh := make(chan error, 1)
	go func() { ipcErrCh <- d.ipcSrv.Listen(ctx, d.socketPath) }()

	listenerErrCh := make(chan error, 1)
	go func() { listenerErrCh <- d.lst.Run(ctx) }()

	d.logger.Info("daemon started",
		zap.Int("pid", os.Getpid()),
		zap.String("worktree", d.roots.Worktree),
		zap.String("socket", d.socketPath))

	var firstErr error
	listenerJoined := false
	select {
	case <-ctx.Done():
		d.logger.Info("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			d.logger.Error("IPC server exited", zap.Error(err))
			firstErr = err
		}
		cancel()
	case err := <-listenerErrCh:
		if err != nil {
			d.logger.Error("listener exited", zap.Error(err))
			firstErr = err
		}
		cancel()
		listenerJoined = true
	}

	if err := d.shutdown(listenerErrCh, listenerJoined); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// RequestStop lets the IPC server's "quit" command (spec §4.5) trigger
// the same teardown path a signal would.
func (d *Daemon) RequestStop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// shutdown performs the ordered teardown from spec §4.6: stop the IPC
// server (drains in-flight connections), join the listener so no thread
// is left running past process exit, then remove the socket file.
// listenerErrCh/listenerJoined let a caller that already consumed the
// listener's exit (because Run's select woke on it) skip the join.
func (d *Daemon) shutdown(listenerErrCh <-chan error, listenerJoined bool) error {
	d.logger.Info("shutting down")

	var firstErr error
	if err := d.ipcSrv.Stop(); err != nil {
		d.logger.Warn("ipc stop", zap.Error(err))
		firstErr = err
	}

	if !listenerJoined {
		if err := <-listenerErrCh; err != nil {
			d.logger.Warn("listener exited with error", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	_ = os.Remove(d.socketPath)

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.logger.Info("daemon stopped")
	return firstErr
}

// Running reports whether the daemon's Run loop is currently active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
