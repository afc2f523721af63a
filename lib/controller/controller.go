// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/warden-systems/warden/lib/clock"
	"github.com/warden-systems/warden/lib/command"
	"github.com/warden-systems/warden/lib/wire"
)

// Transport is the controller's view of the control socket. The
// concrete implementation is transport.Server; tests substitute an
// in-memory fake.
type Transport interface {
	// OnReceive registers the inbound frame consumer. Called before
	// Bind.
	OnReceive(fn func(identity string, payload []byte))

	// Bind establishes the server socket.
	Bind() error

	// Send routes a reply frame, best-effort.
	Send(identity string, payload []byte)

	// Flush waits for the connection's pending outbound frames,
	// best-effort.
	Flush(identity string, timeout time.Duration)

	// Close shuts the transport down. Idempotent.
	Close() error
}

// Supervisor is the shared supervision state machine: the command
// surface plus the per-tick maintenance hook and the shutdown trigger.
type Supervisor interface {
	command.Arbiter

	// Manage runs one round of supervision maintenance (reap exits,
	// respawn processes). Called once per dispatch tick.
	Manage()

	// Stop begins daemon shutdown. Must not block.
	Stop()
}

// SignalHandler is the OS-signal collaborator stopped in lock-step
// with the controller.
type SignalHandler interface {
	Stop()
}

// DefaultCheckDelay is the periodic tick interval when Config leaves
// CheckDelay zero.
const DefaultCheckDelay = time.Second

// defaultFlushTimeout bounds the outbound flush performed before a
// quit shuts the supervisor down.
const defaultFlushTimeout = time.Second

// Config assembles a Controller.
type Config struct {
	// Transport is the control socket. Required.
	Transport Transport

	// Registry is the command set. Required.
	Registry *command.Registry

	// Supervisor is the shared supervision state. Required.
	Supervisor Supervisor

	// Signals is stopped during teardown. Optional.
	Signals SignalHandler

	// CheckDelay is the periodic tick interval. Defaults to
	// DefaultCheckDelay.
	CheckDelay time.Duration

	// Clock drives the periodic tick. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives dispatch diagnostics. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Controller is the command-dispatch engine. Create with New, then
// Start. All dispatch happens on one internal goroutine.
type Controller struct {
	transport  Transport
	registry   *command.Registry
	supervisor Supervisor
	signals    SignalHandler
	checkDelay time.Duration
	clock      clock.Clock
	logger     *slog.Logger

	queue jobQueue

	// wake nudges the dispatch loop on arrivals. Capacity 1: a wake
	// is a level, not a count.
	wake chan struct{}

	stop     chan struct{}
	loopDone chan struct{}
	started  bool

	// quitting is set after a successful quit dispatch. Read and
	// written only on the dispatch goroutine.
	quitting bool
}

// New builds a Controller from config, applying defaults.
func New(config Config) *Controller {
	if config.Transport == nil || config.Registry == nil || config.Supervisor == nil {
		panic("controller.New: Transport, Registry, and Supervisor are required")
	}
	if config.CheckDelay <= 0 {
		config.CheckDelay = DefaultCheckDelay
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Controller{
		transport:  config.Transport,
		registry:   config.Registry,
		supervisor: config.Supervisor,
		signals:    config.Signals,
		checkDelay: config.CheckDelay,
		clock:      config.Clock,
		logger:     config.Logger,
		wake:       make(chan struct{}, 1),
	}
}

// Start binds the transport, registers the receive callback, and
// launches the dispatch loop.
func (c *Controller) Start() error {
	if c.started {
		return fmt.Errorf("controller already started")
	}

	c.transport.OnReceive(c.handleMessage)
	if err := c.transport.Bind(); err != nil {
		return err
	}

	c.stop = make(chan struct{})
	c.loopDone = make(chan struct{})
	go c.run()
	c.started = true
	return nil
}

// Stop tears the controller down: the dispatch loop exits, the
// transport closes (close failures are swallowed), and the signal
// collaborator is stopped unconditionally — even when Start was never
// called or transport teardown partially failed.
func (c *Controller) Stop() {
	if c.started {
		c.started = false
		close(c.stop)
		<-c.loopDone
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close failed", "error", err)
		}
	}
	if c.signals != nil {
		c.signals.Stop()
	}
}

// handleMessage is the transport receive callback. Empty bodies are a
// framing error answered immediately with a plain-text reply, outside
// the structured protocol; everything else is queued for the dispatch
// loop and triggers an immediate wake.
func (c *Controller) handleMessage(identity string, payload []byte) {
	if len(payload) == 0 {
		c.logger.Debug("empty message", "identity", identity)
		if identity != "" {
			c.transport.Send(identity, []byte("error: empty command"))
		}
		return
	}
	c.queue.push(job{identity: identity, raw: payload})
	c.nudge()
}

// nudge wakes the dispatch loop without blocking.
func (c *Controller) nudge() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the dispatch loop: one tick per timer fire, arrival wake, or
// both.
func (c *Controller) run() {
	defer close(c.loopDone)
	ticker := c.clock.NewTicker(c.checkDelay)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.tick()
	}
}

// tick pops at most one job, dispatches it to completion, then runs
// the maintenance hook unconditionally. Capping dispatch at one job
// per tick bounds how far maintenance can fall behind under command
// load. After a quit the queue is abandoned: the supervisor is already
// stopping, so no further jobs are dispatched.
func (c *Controller) tick() {
	if !c.quitting {
		if pending, ok := c.queue.pop(); ok {
			c.dispatch(pending)
		}
		if c.queue.pending() > 0 {
			// Drain the backlog one tick at a time instead of
			// waiting out the check delay.
			c.nudge()
		}
	}
	c.supervisor.Manage()
}

// dispatch processes one job: decode, execute, respond, and handle the
// quit transition.
func (c *Controller) dispatch(pending job) {
	envelope, err := wire.DecodeEnvelope(pending.raw)
	if err != nil {
		// Cast-ness is undeterminable without an envelope, so the
		// error is sent with call semantics.
		c.logger.Debug("undecodable message", "error", err)
		c.respond(pending.identity, false, wire.Error("json invalid", "", wire.InvalidJSON))
		return
	}

	response := c.executeCommand(envelope, pending.raw)
	c.respond(pending.identity, envelope.Cast, response)

	if response["status"] == wire.StatusOK && strings.EqualFold(envelope.Command, "quit") {
		if pending.identity != "" && !envelope.Cast {
			c.transport.Flush(pending.identity, defaultFlushTimeout)
		}
		c.logger.Info("quit acknowledged, stopping supervisor")
		c.supervisor.Stop()
		c.quitting = true
	}
}

// executeCommand looks the command up, validates, executes, and shapes
// the outcome into a response document. Never panics.
func (c *Controller) executeCommand(envelope wire.Envelope, raw []byte) wire.Response {
	if envelope.Command == "" {
		return wire.Error("missing command name", "", wire.UnknownCommand)
	}
	cmd, ok := c.registry.Lookup(envelope.Command)
	if !ok {
		reason := fmt.Sprintf("unknown command: %q", envelope.Command)
		return wire.Error(reason, "", wire.UnknownCommand)
	}

	result, err := c.runCommand(cmd, envelope.Properties)
	if err != nil {
		response := classifyFailure(err, raw)
		if response["errno"] == int(wire.CommandError) {
			c.logger.Error("command failed",
				"command", cmd.Name(),
				"error", err,
			)
		}
		return response
	}

	response, err := wire.FromResult(result)
	if err != nil {
		c.logger.Error("command produced a non-structured payload",
			"command", cmd.Name(),
			"error", err,
		)
		return wire.Error("server error", "", wire.BadMessageData)
	}
	return response
}

// runCommand validates and executes with panic containment: whatever a
// command raises, the dispatch goroutine survives.
func (c *Controller) runCommand(cmd command.Command, properties wire.Properties) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &panicError{
				value: recovered,
				stack: string(debug.Stack()),
			}
		}
	}()
	if err := cmd.Validate(properties); err != nil {
		return nil, err
	}
	return cmd.Execute(c.supervisor, properties)
}

// respond serializes and sends a response, unless the request was a
// cast or arrived without a usable identity.
func (c *Controller) respond(identity string, cast bool, response wire.Response) {
	if cast || identity == "" {
		return
	}
	payload, err := response.Marshal()
	if err != nil {
		c.logger.Error("response serialization failed", "error", err)
		payload, _ = wire.Error("server error", "", wire.NotSpecified).Marshal()
	}
	c.transport.Send(identity, payload)
}
