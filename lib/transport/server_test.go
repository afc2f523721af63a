// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/warden-systems/warden/lib/testutil"
)

type received struct {
	identity string
	payload  []byte
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer binds a server on a fresh Unix socket and returns it with
// its inbound frame channel.
func startServer(t *testing.T) (*Server, chan received) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	server := NewServer("unix://"+socketPath, testLogger())
	inbound := make(chan received, 16)
	server.OnReceive(func(identity string, payload []byte) {
		inbound <- received{identity: identity, payload: payload}
	})
	if err := server.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, inbound
}

func dial(t *testing.T, server *Server) *Client {
	t.Helper()
	network, _, err := ParseEndpoint(server.endpoint)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	client, err := Dial(network+"://"+server.Address(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestReceiveAndReply(t *testing.T) {
	server, inbound := startServer(t)
	client := dial(t, server)

	if err := client.Cast([]byte(`{"command":"ping"}`), time.Second); err != nil {
		t.Fatalf("Cast: %v", err)
	}

	frame := testutil.RequireReceive(t, inbound, 5*time.Second, "inbound frame")
	if frame.identity == "" {
		t.Fatal("frame delivered without an identity")
	}
	if string(frame.payload) != `{"command":"ping"}` {
		t.Errorf("payload = %q", frame.payload)
	}

	server.Send(frame.identity, []byte(`{"status":"ok"}`))
	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := readFrame(client.conn)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if string(reply) != `{"status":"ok"}` {
		t.Errorf("reply = %q", reply)
	}
}

func TestIdentityStablePerConnection(t *testing.T) {
	server, inbound := startServer(t)
	client := dial(t, server)

	for i := 0; i < 3; i++ {
		if err := client.Cast([]byte("frame"), time.Second); err != nil {
			t.Fatalf("Cast %d: %v", i, err)
		}
	}

	first := testutil.RequireReceive(t, inbound, 5*time.Second, "frame 0")
	for i := 1; i < 3; i++ {
		frame := testutil.RequireReceive(t, inbound, 5*time.Second, "frame %d", i)
		if frame.identity != first.identity {
			t.Errorf("frame %d identity %q, want %q", i, frame.identity, first.identity)
		}
	}

	other := dial(t, server)
	if err := other.Cast([]byte("frame"), time.Second); err != nil {
		t.Fatalf("Cast from second client: %v", err)
	}
	frame := testutil.RequireReceive(t, inbound, 5*time.Second, "second client frame")
	if frame.identity == first.identity {
		t.Error("distinct connections share an identity")
	}
}

func TestZeroLengthFrameDelivered(t *testing.T) {
	server, inbound := startServer(t)
	_ = server
	client := dial(t, server)

	if err := client.Cast(nil, time.Second); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	frame := testutil.RequireReceive(t, inbound, 5*time.Second, "empty frame")
	if len(frame.payload) != 0 {
		t.Errorf("payload = %q, want empty", frame.payload)
	}
}

func TestSendToGoneConnection(t *testing.T) {
	server, inbound := startServer(t)
	client := dial(t, server)
	if err := client.Cast([]byte("hello"), time.Second); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	frame := testutil.RequireReceive(t, inbound, 5*time.Second, "frame")

	client.Close()
	// Give the server's read loop a moment to unregister the
	// connection, then confirm Send neither panics nor blocks.
	time.Sleep(50 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		server.Send(frame.identity, []byte("reply"))
		server.Send("no-such-identity", []byte("reply"))
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "Send to gone connection")
}

func TestRequestRoundTrip(t *testing.T) {
	server, inbound := startServer(t)
	client := dial(t, server)

	go func() {
		frame := <-inbound
		server.Send(frame.identity, append([]byte("echo:"), frame.payload...))
	}()

	reply, err := client.Request([]byte("payload"), 5*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(reply) != "echo:payload" {
		t.Errorf("reply = %q", reply)
	}
}

func TestFlushCompletesAfterPendingWrites(t *testing.T) {
	server, inbound := startServer(t)
	client := dial(t, server)

	if err := client.Cast([]byte("hello"), time.Second); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	frame := testutil.RequireReceive(t, inbound, 5*time.Second, "frame")

	server.Send(frame.identity, []byte("reply"))
	done := make(chan struct{})
	go func() {
		server.Flush(frame.identity, 5*time.Second)
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "Flush")

	reply, err := readFrame(client.conn)
	if err != nil {
		t.Fatalf("reading flushed reply: %v", err)
	}
	if string(reply) != "reply" {
		t.Errorf("reply = %q", reply)
	}
}

func TestCloseIdempotent(t *testing.T) {
	server, _ := startServer(t)
	if err := server.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBindErrorOnBusyEndpoint(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	first := NewServer("unix://"+socketPath, testLogger())
	first.OnReceive(func(string, []byte) {})
	if err := first.Bind(); err != nil {
		t.Fatalf("first Bind: %v", err)
	}
	defer first.Close()

	// A second bind on the same path succeeds because stale socket
	// files are removed; use an invalid endpoint to provoke BindError.
	bad := NewServer("ipc://nope", testLogger())
	bad.OnReceive(func(string, []byte) {})
	err := bad.Bind()
	if err == nil {
		t.Fatal("Bind accepted an invalid endpoint")
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("error %v is not a BindError", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		network  string
		address  string
		wantErr  bool
	}{
		{"tcp://127.0.0.1:5555", "tcp", "127.0.0.1:5555", false},
		{"unix:///run/warden/control.sock", "unix", "/run/warden/control.sock", false},
		{"tcp://", "", "", true},
		{"ipc://x", "", "", true},
		{"127.0.0.1:5555", "", "", true},
	}
	for _, c := range cases {
		network, address, err := ParseEndpoint(c.endpoint)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseEndpoint(%q) accepted", c.endpoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEndpoint(%q): %v", c.endpoint, err)
			continue
		}
		if network != c.network || address != c.address {
			t.Errorf("ParseEndpoint(%q) = %q, %q", c.endpoint, network, address)
		}
	}
}
