// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"time"
)

// Client is the dialer side of the control socket. One client maps to
// one connection, and therefore one identity on the server side.
type Client struct {
	conn net.Conn
}

// Dial connects to a control endpoint.
func Dial(endpoint string, timeout time.Duration) (*Client, error) {
	network, address, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	conn, err := (&net.Dialer{Timeout: timeout}).Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return &Client{conn: conn}, nil
}

// Request sends one frame and waits for one reply frame.
func (c *Client) Request(payload []byte, timeout time.Duration) ([]byte, error) {
	if err := c.send(payload, timeout); err != nil {
		return nil, err
	}
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	reply, err := readFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return reply, nil
}

// Cast sends one frame without waiting for a reply.
func (c *Client) Cast(payload []byte, timeout time.Duration) error {
	return c.send(payload, timeout)
}

func (c *Client) send(payload []byte, timeout time.Duration) error {
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := writeFrame(c.conn, payload); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
