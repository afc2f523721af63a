// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, or time.NewTicker directly. Real() provides standard
// library behavior; Fake() provides a deterministic clock for tests that
// advances only when Advance is called.
//
// The controller's dispatch loop takes its periodic tick from a Clock,
// so tests drive tick-by-tick behavior without wall-clock sleeps:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	ctrl := controller.New(..., controller.WithClock(c))
//	c.WaitForTimers(1)        // dispatch loop registered its ticker
//	c.Advance(time.Second)    // fire exactly one tick
package clock
