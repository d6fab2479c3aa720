// Package client implements the TCP request/reply adapter used by the
// command-line front end, per spec.md §4.6.
package client

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/kvslab/kvs/internal/command"
)

// Client holds one connection to a server and the requests/replies
// exchanged serially over it.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Connect dials addr with the given timeout.
func Connect(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Set sends a Set command and waits for its reply.
func (c *Client) Set(key, value string) (command.Reply, error) {
	return c.roundTrip(command.Set(key, value))
}

// Get sends a Get command and waits for its reply.
func (c *Client) Get(key string) (command.Reply, error) {
	return c.roundTrip(command.Get(key))
}

// Remove sends a Remove command and waits for its reply.
func (c *Client) Remove(key string) (command.Reply, error) {
	return c.roundTrip(command.Remove(key))
}

func (c *Client) roundTrip(cmd command.Command) (command.Reply, error) {
	if err := command.Write(c.conn, cmd); err != nil {
		return command.Reply{}, fmt.Errorf("send request: %w", err)
	}
	reply, err := command.ReadReply(c.r)
	if err != nil {
		return command.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}
