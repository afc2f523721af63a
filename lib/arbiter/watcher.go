// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package arbiter

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/warden-systems/warden/lib/clock"
	"github.com/warden-systems/warden/lib/command"
)

// stopGrace is how long a stopping watcher waits for its processes to
// exit after the stop signal before escalating to SIGKILL. Commands
// execute synchronously on the dispatch goroutine, so this bound also
// caps how long a stop command can delay the maintenance hook.
const stopGrace = 3 * time.Second

// WatcherConfig describes one supervised program.
type WatcherConfig struct {
	// Name identifies the watcher in commands. Required, unique.
	Name string

	// Argv is the program and its arguments. Required.
	Argv []string

	// NumProcesses is the target process count. Defaults to 1.
	NumProcesses int

	// WorkingDir is the processes' working directory. Empty means
	// inherit the daemon's.
	WorkingDir string

	// Env is appended to the daemon's environment for each process.
	Env map[string]string

	// StopSignal is sent to stop processes. Defaults to SIGTERM.
	StopSignal unix.Signal

	// Autostart starts the watcher when the daemon boots.
	Autostart bool
}

// Watcher supervises one program as a set of identical processes.
type Watcher struct {
	config WatcherConfig
	logger *slog.Logger
	clock  clock.Clock

	mu        sync.Mutex
	target    int
	running   bool
	processes []*managedProcess
}

var _ command.WatcherRef = (*Watcher)(nil)

func newWatcher(config WatcherConfig, logger *slog.Logger, clk clock.Clock) (*Watcher, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("watcher without a name")
	}
	if len(config.Argv) == 0 {
		return nil, fmt.Errorf("watcher %q: empty argv", config.Name)
	}
	if config.NumProcesses <= 0 {
		config.NumProcesses = 1
	}
	if config.StopSignal == 0 {
		config.StopSignal = unix.SIGTERM
	}
	return &Watcher{
		config: config,
		logger: logger.With("watcher", config.Name),
		clock:  clk,
		target: config.NumProcesses,
	}, nil
}

// Name returns the watcher's name.
func (w *Watcher) Name() string { return w.config.Name }

// Start marks the watcher running and spawns processes up to the
// target count. No-op when already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.logger.Info("watcher starting", "target", w.target)
	return w.spawnMissingLocked()
}

// Stop signals every process with the configured stop signal,
// escalates to SIGKILL after a grace period, and marks the watcher
// stopped. No-op when already stopped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.logger.Info("watcher stopping")
	w.terminateLocked(w.processes)
	w.processes = nil
	return nil
}

// Restart stops then starts the watcher.
func (w *Watcher) Restart() error {
	if err := w.Stop(); err != nil {
		return err
	}
	return w.Start()
}

// Incr raises the target process count and, when running, spawns the
// extra processes. Returns the new target.
func (w *Watcher) Incr(count int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target += count
	if !w.running {
		return w.target, nil
	}
	return w.target, w.spawnMissingLocked()
}

// Decr lowers the target process count (floor zero) and terminates the
// newest surplus processes. Returns the new target.
func (w *Watcher) Decr(count int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target -= count
	if w.target < 0 {
		w.target = 0
	}
	w.trimSurplusLocked()
	return w.target, nil
}

// NumProcesses is the current live process count.
func (w *Watcher) NumProcesses() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.liveLocked())
}

// Pids lists the live process IDs, ascending.
func (w *Watcher) Pids() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	live := w.liveLocked()
	pids := make([]int, len(live))
	for i, process := range live {
		pids[i] = process.pid
	}
	sort.Ints(pids)
	return pids
}

// Signal delivers sig to one process (pid > 0) or to every live
// process (pid == 0).
func (w *Watcher) Signal(sig unix.Signal, pid int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if pid > 0 {
		for _, process := range w.liveLocked() {
			if process.pid == pid {
				return process.signal(sig)
			}
		}
		return command.Errorf("process %d not found in program %s", pid, w.config.Name)
	}
	for _, process := range w.liveLocked() {
		if err := process.signal(sig); err != nil {
			return err
		}
	}
	return nil
}

// Status is "active" while running, "stopped" otherwise.
func (w *Watcher) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return "active"
	}
	return "stopped"
}

// Info returns the watcher's introspection mapping.
func (w *Watcher) Info() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.liveLocked()
	processes := make([]map[string]any, len(live))
	for i, process := range live {
		processes[i] = map[string]any{
			"pid":        process.pid,
			"started_at": process.startedAt.UTC().Format(time.RFC3339),
		}
	}
	status := "stopped"
	if w.running {
		status = "active"
	}
	return map[string]any{
		"status":       status,
		"target":       w.target,
		"numprocesses": len(live),
		"processes":    processes,
	}
}

// manage reaps exited processes and converges the live count toward
// the target. Called once per dispatch tick while the arbiter runs.
func (w *Watcher) manage() {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := w.liveLocked()
	if reaped := len(w.processes) - len(live); reaped > 0 {
		w.logger.Info("reaped exited processes", "count", reaped)
	}
	w.processes = live

	if !w.running {
		return
	}
	if len(w.processes) > w.target {
		w.trimSurplusLocked()
		return
	}
	if err := w.spawnMissingLocked(); err != nil {
		w.logger.Error("respawn failed", "error", err)
	}
}

// liveLocked filters out exited processes.
func (w *Watcher) liveLocked() []*managedProcess {
	live := w.processes[:0:0]
	for _, process := range w.processes {
		if process.alive() {
			live = append(live, process)
		}
	}
	return live
}

// spawnMissingLocked launches processes until the live count reaches
// the target.
func (w *Watcher) spawnMissingLocked() error {
	for len(w.liveLocked()) < w.target {
		process, err := spawn(w.config.Argv, w.config.WorkingDir, w.config.Env, w.clock.Now())
		if err != nil {
			return err
		}
		w.logger.Info("process spawned", "pid", process.pid)
		w.processes = append(w.processes, process)
	}
	return nil
}

// trimSurplusLocked terminates the newest processes above the target.
func (w *Watcher) trimSurplusLocked() {
	live := w.liveLocked()
	if len(live) <= w.target {
		w.processes = live
		return
	}
	keep, surplus := live[:w.target], live[w.target:]
	w.terminateLocked(surplus)
	w.processes = keep
}

// terminateLocked delivers the stop signal to the given processes and
// SIGKILLs whatever survives the grace period.
func (w *Watcher) terminateLocked(processes []*managedProcess) {
	for _, process := range processes {
		if !process.alive() {
			continue
		}
		if err := process.signal(w.config.StopSignal); err != nil {
			w.logger.Debug("stop signal failed", "pid", process.pid, "error", err)
		}
	}
	deadline := w.clock.Now().Add(stopGrace)
	for _, process := range processes {
		if process.awaitExit(w.clock, deadline) {
			continue
		}
		w.logger.Info("escalating to SIGKILL", "pid", process.pid)
		if err := process.signal(unix.SIGKILL); err != nil {
			w.logger.Debug("SIGKILL failed", "pid", process.pid, "error", err)
		}
	}
}
