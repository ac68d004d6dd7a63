package ipc

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Client dials the daemon's Unix socket and speaks the one-request,
// one-response protocol described in spec §6.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a Client bound to socketPath with a default 5s
// request timeout.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 5 * time.Second}
}

// Ping probes whether the daemon is listening on the socket at all,
// without changing any server-side state: spec §7 treats "refused" and
// "no such file" the same way, as "daemon not running".
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	return conn.Close()
}

// Quit sends the fixed "quit" command and waits for the (empty) reply.
func (c *Client) Quit() error {
	_, err := c.roundTrip(CmdQuit)
	return err
}

// Flush sends the fixed "flush" command and waits for the (empty) reply.
func (c *Client) Flush() error {
	_, err := c.roundTrip(CmdFlush)
	return err
}

// Query sends a client token string and returns the daemon's response
// split into the new token and the list of changed paths.
func (c *Client) Query(clientToken string) (newToken string, paths []string, err error) {
	resp, err := c.roundTrip(clientToken)
	if err != nil {
		return "", nil, err
	}
	if strings.HasPrefix(resp, "error: ") {
		return "", nil, fmt.Errorf("daemon rejected query: %s", strings.TrimPrefix(resp, "error: "))
	}
	lines := strings.Split(resp, "\n")
	newToken = lines[0]
	if len(lines) > 1 {
		paths = lines[1:]
	}
	return newToken, paths, nil
}

// roundTrip dials, writes body+terminator, reads the full response up to
// EOF (the server always closes the connection after one response), and
// returns it as a string.
func (c *Client) roundTrip(body string) (string, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write(append([]byte(body), terminator)); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(resp), nil
}
