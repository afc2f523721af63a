// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the JSON control-protocol types shared by the
// daemon's controller and the control client. Both sides import the
// envelope, response, and error-code definitions from here so the wire
// contract is defined once rather than mirrored.
package wire
