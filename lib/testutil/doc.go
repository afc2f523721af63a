// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel assertion helpers shared by the
// transport and controller tests. Every helper takes a timeout so a
// broken test fails instead of hanging.
package testutil
