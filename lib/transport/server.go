// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReceiveFunc consumes one inbound frame. The identity routes the
// matching reply back through Send. The payload may be empty (a legal
// zero-length frame).
type ReceiveFunc func(identity string, payload []byte)

// BindError reports a failure to establish the server socket. Callers
// can distinguish it from later transport errors with errors.As.
type BindError struct {
	Endpoint string
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("binding %s: %v", e.Endpoint, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// writeTimeout bounds a single frame write to a client. A client that
// cannot drain a frame in this window is dropped.
const writeTimeout = 10 * time.Second

// outboundQueueSize is the per-connection buffer between Send and the
// connection's writer goroutine. Overflow frames are dropped — a client
// that falls this far behind has effectively disconnected.
const outboundQueueSize = 64

// Server is an identity-preserving socket server. Every accepted
// connection is assigned an opaque identity token; inbound frames are
// delivered to the registered ReceiveFunc tagged with that token, and
// Send routes a reply back to the connection the token belongs to.
type Server struct {
	endpoint string
	logger   *slog.Logger

	receive ReceiveFunc

	mu          sync.Mutex
	listener    net.Listener
	connections map[string]*serverConnection
	closed      bool

	// active tracks connection goroutines for Close to wait on.
	active sync.WaitGroup
}

// NewServer creates a server for the given endpoint. Call OnReceive to
// register the frame consumer, then Bind to start accepting.
func NewServer(endpoint string, logger *slog.Logger) *Server {
	return &Server{
		endpoint:    endpoint,
		logger:      logger,
		connections: make(map[string]*serverConnection),
	}
}

// OnReceive registers the single consumer of inbound frames. Must be
// called before Bind.
func (s *Server) OnReceive(fn func(identity string, payload []byte)) {
	s.receive = fn
}

// Bind establishes the server socket and starts the accept loop.
// Returns a *BindError when the endpoint is unavailable.
func (s *Server) Bind() error {
	if s.receive == nil {
		return fmt.Errorf("transport: Bind before OnReceive")
	}

	network, address, err := ParseEndpoint(s.endpoint)
	if err != nil {
		return &BindError{Endpoint: s.endpoint, Err: err}
	}
	if network == "unix" {
		// A previous unclean shutdown may have left the socket file.
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return &BindError{Endpoint: s.endpoint, Err: err}
		}
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return &BindError{Endpoint: s.endpoint, Err: err}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.active.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info("control socket listening", "endpoint", s.endpoint)
	return nil
}

// Address returns the bound listener address. Useful with tcp://:0
// endpoints in tests. Returns empty before Bind.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Send routes a reply frame to the connection identified by identity.
// Best-effort: if the connection is gone, its outbound queue is full,
// or the write later fails, the frame is dropped and logged. Send never
// blocks on the client.
func (s *Server) Send(identity string, payload []byte) {
	s.mu.Lock()
	connection := s.connections[identity]
	s.mu.Unlock()

	if connection == nil {
		s.logger.Debug("dropping reply for gone connection", "identity", identity)
		return
	}
	connection.enqueue(outboundFrame{payload: payload}, s.logger)
}

// Flush waits until every frame enqueued for identity before the call
// has been written, the connection dies, or the timeout expires.
// Best-effort, like Send.
func (s *Server) Flush(identity string, timeout time.Duration) {
	s.mu.Lock()
	connection := s.connections[identity]
	s.mu.Unlock()

	if connection == nil {
		return
	}

	ack := make(chan struct{})
	connection.enqueue(outboundFrame{ack: ack}, s.logger)

	select {
	case <-ack:
	case <-connection.done:
	case <-time.After(timeout):
		s.logger.Debug("flush timed out", "identity", identity)
	}
}

// Close shuts the listener and all connections down. Idempotent and
// safe to call during shutdown even if a prior Close partially failed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	connections := make([]*serverConnection, 0, len(s.connections))
	for _, connection := range s.connections {
		connections = append(connections, connection)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, connection := range connections {
		connection.close()
	}
	s.active.Wait()
	return nil
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(listener net.Listener) {
	defer s.active.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.addConnection(conn)
	}
}

// addConnection registers a new connection under a fresh identity and
// starts its reader and writer goroutines.
func (s *Server) addConnection(conn net.Conn) {
	connection := &serverConnection{
		identity: uuid.NewString(),
		conn:     conn,
		outbound: make(chan outboundFrame, outboundQueueSize),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.connections[connection.identity] = connection
	s.mu.Unlock()

	s.active.Add(2)
	go func() {
		defer s.active.Done()
		s.readLoop(connection)
	}()
	go func() {
		defer s.active.Done()
		s.writeLoop(connection)
	}()
}

// readLoop delivers inbound frames to the receive callback until the
// connection closes.
func (s *Server) readLoop(connection *serverConnection) {
	defer s.removeConnection(connection)

	for {
		payload, err := readFrame(connection.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read failed",
					"identity", connection.identity,
					"error", err,
				)
			}
			return
		}
		s.receive(connection.identity, payload)
	}
}

// writeLoop drains the connection's outbound queue. A write failure
// ends the connection; the remaining queued frames are dropped.
func (s *Server) writeLoop(connection *serverConnection) {
	for {
		select {
		case frame := <-connection.outbound:
			if frame.ack != nil {
				close(frame.ack)
				continue
			}
			connection.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := writeFrame(connection.conn, frame.payload); err != nil {
				s.logger.Debug("could not send reply",
					"identity", connection.identity,
					"error", err,
				)
				connection.close()
				return
			}
		case <-connection.done:
			return
		}
	}
}

// removeConnection drops the connection from the routing table and
// releases its goroutines.
func (s *Server) removeConnection(connection *serverConnection) {
	s.mu.Lock()
	delete(s.connections, connection.identity)
	s.mu.Unlock()
	connection.close()
}

// outboundFrame is either a payload to write or a flush marker (ack
// non-nil), which the writer closes when it reaches the marker.
type outboundFrame struct {
	payload []byte
	ack     chan struct{}
}

// serverConnection is one accepted client connection.
type serverConnection struct {
	identity string
	conn     net.Conn
	outbound chan outboundFrame
	done     chan struct{}

	closeOnce sync.Once
}

// enqueue adds a frame to the outbound queue, dropping it when the
// queue is full or the connection is closing.
func (c *serverConnection) enqueue(frame outboundFrame, logger *slog.Logger) {
	select {
	case c.outbound <- frame:
	case <-c.done:
		if frame.ack != nil {
			close(frame.ack)
		}
	default:
		if frame.ack != nil {
			close(frame.ack)
			return
		}
		logger.Debug("outbound queue full, dropping reply", "identity", c.identity)
	}
}

func (c *serverConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
