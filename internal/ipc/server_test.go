package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anthropic/fsmonitor-daemon/internal/token"
)

type fakeQuerier struct {
	newToken token.Token
	paths    []string
	resynced bool
}

func (f *fakeQuerier) Query(token.Token) (token.Token, []string) {
	return f.newToken, f.paths
}

func (f *fakeQuerier) Resync() token.Token {
	f.resynced = true
	return f.newToken
}

type fakeController struct {
	stopped bool
}

func (f *fakeController) RequestStop() {
	f.stopped = true
}

func startTestServer(t *testing.T, querier Querier, ctrl Controller) (*Client, func()) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "fsmonitor.sock")
	srv := NewServer(2, querier, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Listen(ctx, socketPath) }()

	require.Eventually(t, func() bool {
		return NewClient(socketPath).Ping() == nil
	}, time.Second, 10*time.Millisecond)

	return NewClient(socketPath), func() {
		cancel()
		_ = srv.Stop()
	}
}

func TestServerQuitSignalsController(t *testing.T) {
	ctrl := &fakeController{}
	client, stop := startTestServer(t, &fakeQuerier{}, ctrl)
	defer stop()

	require.NoError(t, client.Quit())
	require.True(t, ctrl.stopped)
}

func TestServerFlushTriggersResync(t *testing.T) {
	q := &fakeQuerier{newToken: token.Token{ID: "abc", SequenceNr: 0}}
	client, stop := startTestServer(t, q, &fakeController{})
	defer stop()

	require.NoError(t, client.Flush())
	require.True(t, q.resynced)
}

func TestServerQueryReturnsTokenAndPaths(t *testing.T) {
	q := &fakeQuerier{
		newToken: token.Token{ID: "abc", SequenceNr: 3},
		paths:    []string{"a.txt", "dir/b.txt"},
	}
	client, stop := startTestServer(t, q, &fakeController{})
	defer stop()

	newToken, paths, err := client.Query("builtin:abc:1")
	require.NoError(t, err)
	require.Equal(t, "builtin:abc:3", newToken)
	require.Equal(t, []string{"a.txt", "dir/b.txt"}, paths)
}

func TestServerUnknownCommandReturnsError(t *testing.T) {
	client, stop := startTestServer(t, &fakeQuerier{}, &fakeController{})
	defer stop()

	_, _, err := client.Query("not-a-token")
	require.Error(t, err)
}
