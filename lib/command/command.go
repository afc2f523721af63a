// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/warden-systems/warden/lib/wire"
)

// Command is one control command. Implementations must be safe to call
// repeatedly; all calls happen on the controller's dispatch goroutine.
type Command interface {
	// Name is the canonical (lowercase) command name.
	Name() string

	// Validate fails fast on malformed properties, before any state
	// mutation. Return a *MessageError for request-semantic problems.
	Validate(properties wire.Properties) error

	// Execute runs the command against the supervision state. The
	// result may be nil (bare ok), a string-keyed map (merged into the
	// ok envelope), or a slice (wrapped under "results").
	Execute(arbiter Arbiter, properties wire.Properties) (any, error)
}

// Arbiter is the narrow view of the supervision state machine exposed
// to commands. The concrete arbiter implements it; tests substitute
// fakes.
type Arbiter interface {
	// WatcherNames returns watcher names in registration order.
	WatcherNames() []string

	// Watcher looks a watcher up by its case-insensitive name.
	Watcher(name string) (WatcherRef, bool)

	// NumProcesses is the total live process count across watchers.
	NumProcesses() int
}

// WatcherRef is the per-watcher surface commands operate on.
type WatcherRef interface {
	Name() string

	// Start launches the watcher's processes. No-op when running.
	Start() error

	// Stop terminates the watcher's processes. No-op when stopped.
	Stop() error

	// Restart stops then starts the watcher.
	Restart() error

	// Incr raises the target process count by count and returns the
	// new target.
	Incr(count int) (int, error)

	// Decr lowers the target process count by count (floor zero) and
	// returns the new target.
	Decr(count int) (int, error)

	// NumProcesses is the current live process count.
	NumProcesses() int

	// Pids lists the live process IDs.
	Pids() []int

	// Signal delivers sig to one process (pid > 0) or to all of the
	// watcher's processes (pid == 0).
	Signal(sig unix.Signal, pid int) error

	// Status is "active" when running with live processes, "stopped"
	// otherwise.
	Status() string

	// Info returns the watcher's introspection mapping (status,
	// process details, target count).
	Info() map[string]any
}

// MessageError marks a well-formed but semantically invalid request.
// The controller maps it to the MESSAGE_ERROR wire code with the error
// text as the reason, verbatim.
type MessageError struct {
	Reason string
}

func (e *MessageError) Error() string { return e.Reason }

// Errorf builds a *MessageError from a format string.
func Errorf(format string, args ...any) *MessageError {
	return &MessageError{Reason: fmt.Sprintf(format, args...)}
}
