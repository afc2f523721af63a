// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package arbiter implements the supervision state machine: an ordered
// set of watchers, each owning a group of supervised OS processes.
//
// The arbiter is driven from two places. Control commands mutate it on
// the controller's dispatch goroutine through the command.Arbiter
// interface, and the same goroutine calls Manage once per dispatch
// tick to reap exits and respawn missing processes. Process-exit
// waiters and the shutdown path run off-thread, so all state is
// guarded by internal mutexes.
package arbiter
