// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package arbiter

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/warden-systems/warden/lib/clock"
	"github.com/warden-systems/warden/lib/command"
)

// Arbiter owns the set of watchers and the daemon's shutdown state.
// It implements command.Arbiter for the control commands and the
// controller's Supervisor contract (Manage and Stop).
type Arbiter struct {
	logger *slog.Logger
	clock  clock.Clock

	mu       sync.Mutex
	watchers []*Watcher
	byName   map[string]*Watcher
	stopped  bool

	// stopOnce guards the shutdown sequence; done closes once every
	// watcher has been stopped.
	stopOnce sync.Once
	done     chan struct{}
}

// New returns an empty arbiter.
func New(logger *slog.Logger, clk clock.Clock) *Arbiter {
	return &Arbiter{
		logger: logger,
		clock:  clk,
		byName: make(map[string]*Watcher),
		done:   make(chan struct{}),
	}
}

// AddWatcher registers a watcher. Names are case-insensitive and must
// be unique. The watcher is not started; call Start on it (or
// StartAll) afterwards.
func (a *Arbiter) AddWatcher(config WatcherConfig) (*Watcher, error) {
	watcher, err := newWatcher(config, a.logger, a.clock)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(config.Name)
	if _, exists := a.byName[key]; exists {
		return nil, fmt.Errorf("duplicate watcher %q", config.Name)
	}
	a.watchers = append(a.watchers, watcher)
	a.byName[key] = watcher
	return watcher, nil
}

// StartAll starts every watcher marked Autostart.
func (a *Arbiter) StartAll() error {
	for _, watcher := range a.snapshot() {
		if !watcher.config.Autostart {
			continue
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("starting watcher %s: %w", watcher.Name(), err)
		}
	}
	return nil
}

// WatcherNames returns watcher names in registration order.
func (a *Arbiter) WatcherNames() []string {
	watchers := a.snapshot()
	names := make([]string, len(watchers))
	for i, watcher := range watchers {
		names[i] = watcher.Name()
	}
	return names
}

// Watcher looks a watcher up by case-insensitive name.
func (a *Arbiter) Watcher(name string) (command.WatcherRef, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	watcher, ok := a.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return watcher, true
}

// NumProcesses is the total live process count across watchers.
func (a *Arbiter) NumProcesses() int {
	total := 0
	for _, watcher := range a.snapshot() {
		total += watcher.NumProcesses()
	}
	return total
}

// Manage is the per-tick maintenance hook: every watcher reaps exits
// and respawns toward its target. No-op once the arbiter is stopped.
func (a *Arbiter) Manage() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	watchers := append([]*Watcher(nil), a.watchers...)
	a.mu.Unlock()

	for _, watcher := range watchers {
		watcher.manage()
	}
}

// Stop begins daemon shutdown: no further maintenance runs, and every
// watcher is stopped off-thread (signal, grace period, SIGKILL
// escalation). The caller must not block on completion — wait on
// Stopped instead.
func (a *Arbiter) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		watchers := append([]*Watcher(nil), a.watchers...)
		a.mu.Unlock()

		a.logger.Info("arbiter stopping", "watchers", len(watchers))
		go func() {
			for _, watcher := range watchers {
				if err := watcher.Stop(); err != nil {
					a.logger.Error("stopping watcher failed",
						"watcher", watcher.Name(),
						"error", err,
					)
				}
			}
			close(a.done)
		}()
	})
}

// Stopped closes once Stop has terminated every watcher. The daemon's
// main goroutine waits on it before tearing the controller down.
func (a *Arbiter) Stopped() <-chan struct{} { return a.done }

// snapshot copies the watcher list under the lock.
func (a *Arbiter) snapshot() []*Watcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Watcher(nil), a.watchers...)
}
