// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps command names to commands. Lookup is case-insensitive.
// The registry is populated at startup and read-only afterwards, so no
// locking is needed.
type Registry struct {
	commands map[string]Command
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command under its lowercased name. Panics on a
// duplicate name (a programming error, not runtime data).
func (r *Registry) Register(cmd Command) {
	name := strings.ToLower(cmd.Name())
	if _, exists := r.commands[name]; exists {
		panic(fmt.Sprintf("command.Registry: duplicate command %q", name))
	}
	r.commands[name] = cmd
}

// Lookup finds a command by case-insensitive name.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry holding the built-in command set plus any
// extras.
func Builtin(extras ...Command) *Registry {
	registry := NewRegistry()
	for _, cmd := range []Command{
		pingCommand{},
		listCommand{},
		statusCommand{},
		statsCommand{},
		numWatchersCommand{},
		numProcessesCommand{},
		startCommand{},
		stopCommand{},
		restartCommand{},
		incrCommand{},
		decrCommand{},
		signalCommand{},
		quitCommand{},
	} {
		registry.Register(cmd)
	}
	for _, cmd := range extras {
		registry.Register(cmd)
	}
	return registry
}
