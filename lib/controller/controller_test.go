// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warden-systems/warden/lib/clock"
	"github.com/warden-systems/warden/lib/command"
	"github.com/warden-systems/warden/lib/testutil"
	"github.com/warden-systems/warden/lib/wire"
)

const (
	receiveTimeout = 5 * time.Second
	silenceWindow  = 200 * time.Millisecond
)

type sentFrame struct {
	identity string
	payload  []byte
}

// fakeTransport is an in-memory Transport: delivered frames go straight
// to the registered receive callback, outbound frames land on a channel
// the test reads.
type fakeTransport struct {
	mu      sync.Mutex
	receive func(identity string, payload []byte)
	bindErr error
	bound   bool
	closes  int
	sent    chan sentFrame
	flushes chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(chan sentFrame, 16),
		flushes: make(chan string, 4),
	}
}

func (f *fakeTransport) OnReceive(fn func(identity string, payload []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receive = fn
}

func (f *fakeTransport) Bind() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound = true
	return nil
}

func (f *fakeTransport) Send(identity string, payload []byte) {
	f.sent <- sentFrame{identity: identity, payload: payload}
}

func (f *fakeTransport) Flush(identity string, timeout time.Duration) {
	f.flushes <- identity
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// deliver injects an inbound frame as the transport would.
func (f *fakeTransport) deliver(identity string, payload []byte) {
	f.mu.Lock()
	receive := f.receive
	f.mu.Unlock()
	if receive == nil {
		panic("deliver before OnReceive")
	}
	receive(identity, payload)
}

// fakeSupervisor satisfies Supervisor with a fixed watcher-name list
// and no real watchers. Manage calls are observable on a channel.
type fakeSupervisor struct {
	names   []string
	manages chan struct{}

	mu      sync.Mutex
	stopped bool
}

func newFakeSupervisor(names ...string) *fakeSupervisor {
	return &fakeSupervisor{
		names:   names,
		manages: make(chan struct{}, 64),
	}
}

func (f *fakeSupervisor) WatcherNames() []string { return f.names }

func (f *fakeSupervisor) Watcher(name string) (command.WatcherRef, bool) {
	return nil, false
}

func (f *fakeSupervisor) NumProcesses() int { return 0 }

func (f *fakeSupervisor) Manage() {
	select {
	case f.manages <- struct{}{}:
	default:
	}
}

func (f *fakeSupervisor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSupervisor) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeSignals counts Stop calls.
type fakeSignals struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeSignals) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSignals) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// stubCommand wires arbitrary behavior into the registry for failure
// injection.
type stubCommand struct {
	name     string
	validate func(wire.Properties) error
	execute  func(command.Arbiter, wire.Properties) (any, error)
}

func (s stubCommand) Name() string { return s.name }

func (s stubCommand) Validate(properties wire.Properties) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(properties)
}

func (s stubCommand) Execute(arbiter command.Arbiter, properties wire.Properties) (any, error) {
	if s.execute == nil {
		return nil, nil
	}
	return s.execute(arbiter, properties)
}

type harness struct {
	controller *Controller
	transport  *fakeTransport
	supervisor *fakeSupervisor
	signals    *fakeSignals
	clk        *clock.FakeClock
}

func newHarness(t *testing.T, extras ...command.Command) *harness {
	t.Helper()
	h := &harness{
		transport:  newFakeTransport(),
		supervisor: newFakeSupervisor("web", "worker"),
		signals:    &fakeSignals{},
		clk:        clock.Fake(time.Unix(1000, 0)),
	}
	h.controller = New(Config{
		Transport:  h.transport,
		Registry:   command.Builtin(extras...),
		Supervisor: h.supervisor,
		Signals:    h.signals,
		Clock:      h.clk,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := h.controller.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.controller.Stop)
	// The dispatch loop owns the only ticker; once it is registered the
	// loop is live.
	h.clk.WaitForTimers(1)
	return h
}

// request sends a frame and decodes the reply document.
func (h *harness) request(t *testing.T, identity string, payload string) map[string]any {
	t.Helper()
	h.transport.deliver(identity, []byte(payload))
	frame := testutil.RequireReceive(t, h.transport.sent, receiveTimeout, "reply to %s", payload)
	if frame.identity != identity {
		t.Fatalf("reply routed to %q, want %q", frame.identity, identity)
	}
	var document map[string]any
	if err := json.Unmarshal(frame.payload, &document); err != nil {
		t.Fatalf("reply is not JSON: %v (%q)", err, frame.payload)
	}
	return document
}

func requireError(t *testing.T, document map[string]any, errno wire.ErrorCode) string {
	t.Helper()
	if document["status"] != "error" {
		t.Fatalf("status = %v, want error (document %v)", document["status"], document)
	}
	if got := document["errno"]; got != float64(errno) {
		t.Fatalf("errno = %v, want %d", got, errno)
	}
	reason, _ := document["reason"].(string)
	return reason
}

func TestPingRoundTrip(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": "ping"}`)
	if document["status"] != "ok" {
		t.Errorf("status = %v, want ok", document["status"])
	}
}

func TestCommandNameCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": "PiNg"}`)
	if document["status"] != "ok" {
		t.Errorf("status = %v, want ok", document["status"])
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": "bogus"}`)
	reason := requireError(t, document, wire.UnknownCommand)
	if reason != `unknown command: "bogus"` {
		t.Errorf("reason = %q", reason)
	}
}

func TestMissingCommandName(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{}`)
	reason := requireError(t, document, wire.UnknownCommand)
	if reason != "missing command name" {
		t.Errorf("reason = %q", reason)
	}
}

func TestInvalidJSON(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": `)
	requireError(t, document, wire.InvalidJSON)
}

func TestMessageErrorReasonVerbatim(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": "incr", "properties": {"name": "missing"}}`)
	reason := requireError(t, document, wire.MessageError)
	if reason != "program missing not found" {
		t.Errorf("reason = %q", reason)
	}
}

func TestListWrapsResults(t *testing.T) {
	h := newHarness(t)
	document := h.request(t, "client-1", `{"command": "list"}`)
	if document["status"] != "ok" {
		t.Fatalf("status = %v (document %v)", document["status"], document)
	}
	results, ok := document["results"].([]any)
	if !ok {
		t.Fatalf("results = %v (%T)", document["results"], document["results"])
	}
	if len(results) != 2 || results[0] != "web" || results[1] != "worker" {
		t.Errorf("results = %v", results)
	}
}

func TestReadOnlyCommandIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.request(t, "client-1", `{"command": "list"}`)
	second := h.request(t, "client-1", `{"command": "list"}`)
	if first["status"] != "ok" {
		t.Fatalf("status = %v (document %v)", first["status"], first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated list diverged:\nfirst:  %v\nsecond: %v", first, second)
	}
}

func TestCastSuppressesResponse(t *testing.T) {
	h := newHarness(t)
	h.transport.deliver("client-1", []byte(`{"command": "ping", "msg_type": "cast"}`))
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "cast reply")

	// Failures are suppressed the same way.
	h.transport.deliver("client-1", []byte(`{"command": "bogus", "msg_type": "cast"}`))
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "cast error reply")
}

func TestMissingIdentitySuppressesResponse(t *testing.T) {
	h := newHarness(t)
	h.transport.deliver("", []byte(`{"command": "ping"}`))
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "reply without identity")
	// The command still ran: its tick's maintenance pass is observable.
	testutil.RequireReceive(t, h.supervisor.manages, receiveTimeout, "tick after identityless job")
}

func TestEmptyFrameAnsweredOutOfBand(t *testing.T) {
	h := newHarness(t)
	h.transport.deliver("client-1", nil)
	frame := testutil.RequireReceive(t, h.transport.sent, receiveTimeout, "empty-frame reply")
	if got := string(frame.payload); got != "error: empty command" {
		t.Errorf("payload = %q", got)
	}
	if json.Valid(frame.payload) {
		t.Error("empty-frame reply should be plain text, not JSON")
	}
}

func TestEmptyFrameWithoutIdentityIsDropped(t *testing.T) {
	h := newHarness(t)
	h.transport.deliver("", nil)
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "reply to identityless empty frame")
}

func TestDispatchPreservesArrivalOrder(t *testing.T) {
	echo := stubCommand{
		name: "echo",
		execute: func(_ command.Arbiter, properties wire.Properties) (any, error) {
			return map[string]any{"value": properties["v"]}, nil
		},
	}
	h := newHarness(t, echo)

	for i := 0; i < 5; i++ {
		h.transport.deliver("client-1", []byte(fmt.Sprintf(`{"command": "echo", "properties": {"v": %d}}`, i)))
	}
	for i := 0; i < 5; i++ {
		frame := testutil.RequireReceive(t, h.transport.sent, receiveTimeout, "reply %d", i)
		var document map[string]any
		if err := json.Unmarshal(frame.payload, &document); err != nil {
			t.Fatalf("reply %d: %v", i, err)
		}
		if got := document["value"]; got != float64(i) {
			t.Fatalf("reply %d carries value %v", i, got)
		}
	}
}

func TestManageRunsOnIdleTicks(t *testing.T) {
	h := newHarness(t)
	h.clk.Advance(DefaultCheckDelay)
	testutil.RequireReceive(t, h.supervisor.manages, receiveTimeout, "maintenance on idle tick")
	h.clk.Advance(DefaultCheckDelay)
	testutil.RequireReceive(t, h.supervisor.manages, receiveTimeout, "maintenance on second idle tick")
}

func TestManageRunsAfterDispatch(t *testing.T) {
	h := newHarness(t)
	h.request(t, "client-1", `{"command": "ping"}`)
	testutil.RequireReceive(t, h.supervisor.manages, receiveTimeout, "maintenance after dispatch")
}

func TestPanicBecomesCommandError(t *testing.T) {
	boom := stubCommand{
		name: "boom",
		execute: func(command.Arbiter, wire.Properties) (any, error) {
			panic("exploded")
		},
	}
	h := newHarness(t, boom)

	document := h.request(t, "client-1", `{"command": "boom"}`)
	reason := requireError(t, document, wire.CommandError)
	if !strings.Contains(reason, "exploded") {
		t.Errorf("reason = %q, want the panic value", reason)
	}
	traceback, _ := document["traceback"].(string)
	if !strings.Contains(traceback, "goroutine") {
		t.Errorf("traceback = %q, want a stack trace", traceback)
	}

	// The dispatch loop survived.
	document = h.request(t, "client-1", `{"command": "ping"}`)
	if document["status"] != "ok" {
		t.Errorf("ping after panic: status = %v", document["status"])
	}
}

func TestOSErrorClassified(t *testing.T) {
	fail := stubCommand{
		name: "osfail",
		execute: func(command.Arbiter, wire.Properties) (any, error) {
			return nil, &os.SyscallError{Syscall: "kill", Err: errors.New("operation not permitted")}
		},
	}
	h := newHarness(t, fail)

	document := h.request(t, "client-1", `{"command": "osfail"}`)
	reason := requireError(t, document, wire.OSError)
	if !strings.Contains(reason, "operation not permitted") {
		t.Errorf("reason = %q", reason)
	}
	if _, present := document["traceback"]; present {
		t.Error("OS errors should not carry a traceback")
	}
}

func TestNonStructuredResultRejected(t *testing.T) {
	bad := stubCommand{
		name: "bad",
		execute: func(command.Arbiter, wire.Properties) (any, error) {
			return 42, nil
		},
	}
	h := newHarness(t, bad)

	document := h.request(t, "client-1", `{"command": "bad"}`)
	requireError(t, document, wire.BadMessageData)
}

func TestQuitStopsSupervisorAndFlushes(t *testing.T) {
	h := newHarness(t)

	document := h.request(t, "client-1", `{"command": "quit"}`)
	if document["status"] != "ok" {
		t.Fatalf("quit status = %v", document["status"])
	}
	identity := testutil.RequireReceive(t, h.transport.flushes, receiveTimeout, "flush before shutdown")
	if identity != "client-1" {
		t.Errorf("flushed %q, want client-1", identity)
	}
	if !h.supervisor.isStopped() {
		t.Error("supervisor not stopped")
	}
}

func TestQuitAbandonsQueuedJobs(t *testing.T) {
	h := newHarness(t)

	h.transport.deliver("client-1", []byte(`{"command": "quit"}`))
	h.transport.deliver("client-1", []byte(`{"command": "ping"}`))

	frame := testutil.RequireReceive(t, h.transport.sent, receiveTimeout, "quit reply")
	var document map[string]any
	if err := json.Unmarshal(frame.payload, &document); err != nil {
		t.Fatalf("quit reply: %v", err)
	}
	if document["status"] != "ok" {
		t.Fatalf("quit status = %v", document["status"])
	}

	// The queued ping is never dispatched, even across further ticks.
	h.clk.Advance(DefaultCheckDelay)
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "dispatch after quit")

	// Maintenance keeps running while shutdown completes.
	h.clk.Advance(DefaultCheckDelay)
	testutil.RequireReceive(t, h.supervisor.manages, receiveTimeout, "maintenance after quit")
}

func TestCastQuitStopsWithoutFlush(t *testing.T) {
	h := newHarness(t)

	h.transport.deliver("client-1", []byte(`{"command": "quit", "msg_type": "cast"}`))
	testutil.RequireNoReceive(t, h.transport.sent, silenceWindow, "cast quit reply")
	testutil.RequireNoReceive(t, h.transport.flushes, silenceWindow, "cast quit flush")
	if !h.supervisor.isStopped() {
		t.Error("supervisor not stopped by cast quit")
	}
}

func TestStartFailsWhenBindFails(t *testing.T) {
	transport := newFakeTransport()
	transport.bindErr = errors.New("address in use")
	controller := New(Config{
		Transport:  transport,
		Registry:   command.Builtin(),
		Supervisor: newFakeSupervisor(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := controller.Start(); err == nil {
		t.Fatal("Start succeeded despite bind failure")
	}
}

func TestStopWithoutStartStillStopsSignals(t *testing.T) {
	signals := &fakeSignals{}
	controller := New(Config{
		Transport:  newFakeTransport(),
		Registry:   command.Builtin(),
		Supervisor: newFakeSupervisor(),
		Signals:    signals,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	controller.Stop()
	if signals.stopCount() != 1 {
		t.Errorf("signal handler stopped %d times, want 1", signals.stopCount())
	}
}

func TestStopClosesTransportOnce(t *testing.T) {
	h := newHarness(t)
	h.controller.Stop()
	h.controller.Stop()
	h.transport.mu.Lock()
	closes := h.transport.closes
	h.transport.mu.Unlock()
	if closes != 1 {
		t.Errorf("transport closed %d times, want 1", closes)
	}
	if h.signals.stopCount() != 2 {
		t.Errorf("signal handler stopped %d times, want 2", h.signals.stopCount())
	}
}
