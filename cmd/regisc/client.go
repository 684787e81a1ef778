package main

import (
	"fmt"
	"net"
	"time"

	"github.com/exclusivedisjunction/regisd/internal/wire"
)

// dialTimeout bounds how long regisc waits for regisd to accept the
// console connection; the daemon may be at its max_console ceiling.
const dialTimeout = 5 * time.Second

// client is a single request/response round trip over the console
// protocol (spec.md §4.11, unencrypted, trust boundary is the socket's
// filesystem permissions — see internal/wire's package doc).
type client struct {
	conn net.Conn
}

func dial(socketPath string) (*client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to regisd at %s: %w", socketPath, err)
	}
	return &client{conn: conn}, nil
}

func (c *client) close() error {
	return c.conn.Close()
}

// roundTrip sends req and blocks for the one response frame the console
// protocol always returns.
func (c *client) roundTrip(req wire.ConsoleRequest) (wire.ConsoleResponse, error) {
	if err := wire.SendJSON(c.conn, req); err != nil {
		return wire.ConsoleResponse{}, fmt.Errorf("send request: %w", err)
	}
	var resp wire.ConsoleResponse
	if err := wire.ReceiveJSON(c.conn, &resp); err != nil {
		return wire.ConsoleResponse{}, fmt.Errorf("receive response: %w", err)
	}
	return resp, nil
}
