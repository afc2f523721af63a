// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the identity-preserving socket the
// controller serves on, plus the matching client dialer.
//
// The server tags every inbound frame with an opaque per-connection
// identity token and routes replies back by that token. Frames are
// length-prefixed byte strings; their content (JSON control documents)
// is opaque at this layer.
//
// Sends are best-effort: each connection has its own writer goroutine
// and a bounded outbound queue, so a slow or dead client can never
// block the caller. Send failures are logged and swallowed.
package transport
