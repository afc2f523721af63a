// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package command defines the control-command contract and the
// built-in command set.
//
// A Command validates its properties before touching state, then
// executes against the arbiter through the narrow Arbiter interface.
// The registry maps case-insensitive command names to commands; the
// controller owns lookup, execution, and failure classification.
package command
