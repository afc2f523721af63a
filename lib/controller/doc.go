// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the daemon's command-dispatch engine.
//
// Inbound frames from the transport are queued and drained by a single
// dispatch goroutine: one job per tick, each followed unconditionally
// by the supervisor's maintenance hook. Ticks fire on a periodic timer
// and on every arrival, so the common case is low-latency while an
// idle daemon wakes only once per check delay.
//
// The dispatch goroutine is the only writer to supervision state that
// originates from clients, and it survives every command failure: all
// errors — malformed envelopes, unknown commands, validation
// rejections, OS failures, and panics — become wire error responses.
package controller
