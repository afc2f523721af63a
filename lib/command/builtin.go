// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"github.com/warden-systems/warden/lib/wire"
)

// pingCommand answers with a bare ok. Used by clients as a liveness
// probe.
type pingCommand struct{}

func (pingCommand) Name() string                          { return "ping" }
func (pingCommand) Validate(wire.Properties) error        { return nil }
func (pingCommand) Execute(Arbiter, wire.Properties) (any, error) {
	return nil, nil
}

// listCommand lists watcher names, or the pids of one watcher when a
// name is given. Read-only.
type listCommand struct{}

func (listCommand) Name() string { return "list" }

func (listCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (listCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		return watcher.Pids(), nil
	}
	return arbiter.WatcherNames(), nil
}

// statusCommand reports one watcher's status, or every watcher's.
type statusCommand struct{}

func (statusCommand) Name() string { return "status" }

func (statusCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (statusCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		return map[string]any{"status": watcher.Status()}, nil
	}
	statuses := make(map[string]any)
	for _, name := range arbiter.WatcherNames() {
		if w, ok := arbiter.Watcher(name); ok {
			statuses[name] = w.Status()
		}
	}
	return map[string]any{"statuses": statuses}, nil
}

// statsCommand returns the introspection mapping of one or all
// watchers.
type statsCommand struct{}

func (statsCommand) Name() string { return "stats" }

func (statsCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (statsCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		return map[string]any{"info": watcher.Info()}, nil
	}
	infos := make(map[string]any)
	for _, name := range arbiter.WatcherNames() {
		if w, ok := arbiter.Watcher(name); ok {
			infos[name] = w.Info()
		}
	}
	return map[string]any{"infos": infos}, nil
}

// numWatchersCommand reports the watcher count.
type numWatchersCommand struct{}

func (numWatchersCommand) Name() string                   { return "numwatchers" }
func (numWatchersCommand) Validate(wire.Properties) error { return nil }
func (numWatchersCommand) Execute(arbiter Arbiter, _ wire.Properties) (any, error) {
	return map[string]any{"numwatchers": len(arbiter.WatcherNames())}, nil
}

// numProcessesCommand reports the live process count, total or for one
// watcher.
type numProcessesCommand struct{}

func (numProcessesCommand) Name() string { return "numprocesses" }

func (numProcessesCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (numProcessesCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return nil, err
	}
	if watcher != nil {
		return map[string]any{"numprocesses": watcher.NumProcesses()}, nil
	}
	return map[string]any{"numprocesses": arbiter.NumProcesses()}, nil
}

// startCommand starts one watcher, or all of them.
type startCommand struct{}

func (startCommand) Name() string { return "start" }

func (startCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (startCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	return nil, forEachTarget(arbiter, properties, WatcherRef.Start)
}

// stopCommand stops one watcher, or all of them.
type stopCommand struct{}

func (stopCommand) Name() string { return "stop" }

func (stopCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (stopCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	return nil, forEachTarget(arbiter, properties, WatcherRef.Stop)
}

// restartCommand restarts one watcher, or all of them.
type restartCommand struct{}

func (restartCommand) Name() string { return "restart" }

func (restartCommand) Validate(properties wire.Properties) error {
	_, err := stringProperty(properties, "name")
	return err
}

func (restartCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	return nil, forEachTarget(arbiter, properties, WatcherRef.Restart)
}

// forEachTarget applies op to the named watcher, or to every watcher
// when no name was given. Stops at the first failure.
func forEachTarget(arbiter Arbiter, properties wire.Properties, op func(WatcherRef) error) error {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return err
	}
	if watcher != nil {
		return op(watcher)
	}
	for _, name := range arbiter.WatcherNames() {
		if w, ok := arbiter.Watcher(name); ok {
			if err := op(w); err != nil {
				return err
			}
		}
	}
	return nil
}

// incrCommand raises a watcher's target process count.
type incrCommand struct{}

func (incrCommand) Name() string { return "incr" }

func (incrCommand) Validate(properties wire.Properties) error {
	if _, err := stringProperty(properties, "name"); err != nil {
		return err
	}
	return validateDelta(properties)
}

func (incrCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := requiredWatcher(arbiter, properties)
	if err != nil {
		return nil, err
	}
	delta, err := intProperty(properties, "nb", 1)
	if err != nil {
		return nil, err
	}
	count, err := watcher.Incr(delta)
	if err != nil {
		return nil, err
	}
	return map[string]any{"numprocesses": count}, nil
}

// decrCommand lowers a watcher's target process count.
type decrCommand struct{}

func (decrCommand) Name() string { return "decr" }

func (decrCommand) Validate(properties wire.Properties) error {
	if _, err := stringProperty(properties, "name"); err != nil {
		return err
	}
	return validateDelta(properties)
}

func (decrCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := requiredWatcher(arbiter, properties)
	if err != nil {
		return nil, err
	}
	delta, err := intProperty(properties, "nb", 1)
	if err != nil {
		return nil, err
	}
	count, err := watcher.Decr(delta)
	if err != nil {
		return nil, err
	}
	return map[string]any{"numprocesses": count}, nil
}

// validateDelta checks the optional "nb" step property.
func validateDelta(properties wire.Properties) error {
	delta, err := intProperty(properties, "nb", 1)
	if err != nil {
		return err
	}
	if delta <= 0 {
		return Errorf("property %q must be positive", "nb")
	}
	return nil
}

// signalCommand delivers a signal to a watcher's processes.
type signalCommand struct{}

func (signalCommand) Name() string { return "signal" }

func (signalCommand) Validate(properties wire.Properties) error {
	if _, err := stringProperty(properties, "name"); err != nil {
		return err
	}
	value, present := properties["signum"]
	if !present {
		return Errorf("property %q is required", "signum")
	}
	if _, err := parseSignal(value); err != nil {
		return err
	}
	_, err := intProperty(properties, "pid", 0)
	return err
}

func (signalCommand) Execute(arbiter Arbiter, properties wire.Properties) (any, error) {
	watcher, err := requiredWatcher(arbiter, properties)
	if err != nil {
		return nil, err
	}
	sig, err := parseSignal(properties["signum"])
	if err != nil {
		return nil, err
	}
	pid, err := intProperty(properties, "pid", 0)
	if err != nil {
		return nil, err
	}
	return nil, watcher.Signal(sig, pid)
}

// quitCommand acknowledges the shutdown request. The controller
// performs the actual supervisor stop after the response is flushed,
// so shutdown is always acknowledged before termination begins.
type quitCommand struct{}

func (quitCommand) Name() string                          { return "quit" }
func (quitCommand) Validate(wire.Properties) error        { return nil }
func (quitCommand) Execute(Arbiter, wire.Properties) (any, error) {
	return nil, nil
}
