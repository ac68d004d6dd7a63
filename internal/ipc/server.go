package ipc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropic/fsmonitor-daemon/internal/token"
)

// Querier is the batch log surface the IPC server needs: answer a query
// and force a resync. internal/batchlog.Log satisfies this.
type Querier interface {
	Query(clientToken token.Token) (token.Token, []string)
	Resync() token.Token
}

// Controller lets the "quit" command signal the daemon controller to shut
// down, without the ipc package importing internal/daemon (spec §4.5:
// "Signals C6 to shut the server down").
type Controller interface {
	RequestStop()
}

// Server is the IPC Server (C5): a fixed-size worker pool accepting Unix
// domain socket connections, each good for exactly one request/response.
type Server struct {
	threads int
	querier Querier
	ctrl    Controller
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	connCh   chan net.Conn
	workers  sync.WaitGroup
}

// NewServer creates a Server with the given worker-pool size (spec §4.5:
// "default 8, configurable >= 1"). threads < 1 is programmer error in
// this package; internal/config.Validate is what actually enforces the
// >= 1 constraint on user input before it reaches here.
func NewServer(threads int, querier Querier, ctrl Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threads < 1 {
		threads = 1
	}
	return &Server{threads: threads, querier: querier, ctrl: ctrl, logger: logger}
}

// Listen removes any stale socket file, binds socketPath with owner-only
// permissions, starts the worker pool, and accepts connections until ctx
// is cancelled or Stop is called.
func (s *Server) Listen(ctx context.Context, socketPath string) error {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.connCh = make(chan net.Conn)
	s.mu.Unlock()

	for i := 0; i < s.threads; i++ {
		s.workers.Add(1)
		go s.worker()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.Info("IPC server listening", zap.String("socket", socketPath), zap.Int("threads", s.threads))

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()

			s.closeConnCh()
			s.workers.Wait()

			if stopped {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.connCh <- conn
	}
}

// worker is one member of the fixed-size thread pool (spec §4.5).
func (s *Server) worker() {
	defer s.workers.Done()
	for conn := range s.connCh {
		s.handleConn(conn)
	}
}

func (s *Server) closeConnCh() {
	s.mu.Lock()
	ch := s.connCh
	s.mu.Unlock()
	if ch == nil {
		return
	}
	// Guard against double-close: Stop() and a failing Accept() can race
	// to close the same channel.
	defer func() { recover() }() //nolint:errcheck
	close(ch)
}

// Stop stops accepting new connections and waits (with a timeout) for the
// worker pool to drain in-flight connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("ipc: drain timeout: connections still open after 5s")
	}
}

// handleConn reads exactly one null-terminated request, dispatches it per
// spec §4.5, and writes exactly one response.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	raw, err := bufio.NewReader(conn).ReadBytes(0)
	if err != nil {
		s.logger.Debug("ipc: transient client I/O error", zap.Error(err))
		return
	}

	body, ok := splitRequest(raw)
	if !ok {
		s.logger.Error("ipc: protocol violation: malformed request framing")
		return
	}

	switch body {
	case CmdQuit:
		writeEmpty(conn)
		if s.ctrl != nil {
			s.ctrl.RequestStop()
		}

	case CmdFlush:
		s.querier.Resync()
		writeEmpty(conn)

	default:
		s.handleQuery(conn, body)
	}
}

func (s *Server) handleQuery(conn net.Conn, body string) {
	if !isTokenLike(body) {
		writeError(conn, fmt.Sprintf("unknown command: %q", body))
		return
	}
	clientToken, err := token.Parse(body)
	if err != nil {
		writeError(conn, fmt.Sprintf("unknown command: %v", err))
		return
	}

	newToken, paths := s.querier.Query(clientToken)

	var b strings.Builder
	b.WriteString(newToken.String())
	for _, p := range paths {
		b.WriteByte('\n')
		b.WriteString(p)
	}
	_, _ = conn.Write([]byte(b.String()))
}

func writeEmpty(conn net.Conn) {
	_, _ = conn.Write(nil)
}

func writeError(conn net.Conn, msg string) {
	_, _ = conn.Write([]byte("error: " + msg))
}
