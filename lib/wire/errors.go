// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// ErrorCode is the small-integer error taxonomy carried in the errno
// field of error responses. The values are part of the wire protocol
// and must never be renumbered.
type ErrorCode int

const (
	// NotSpecified is the default code for errors that fit no other
	// category.
	NotSpecified ErrorCode = 0

	// InvalidJSON means the message body did not parse as a JSON
	// document.
	InvalidJSON ErrorCode = 1

	// UnknownCommand means the command name is missing or not
	// registered.
	UnknownCommand ErrorCode = 2

	// MessageError means the request was well-formed but semantically
	// invalid (rejected by a command's Validate or Execute).
	MessageError ErrorCode = 3

	// OSError means command execution failed at the operating-system
	// level (spawn failure, signal delivery failure, and the like).
	OSError ErrorCode = 4

	// CommandError is the catch-all for unclassified execution
	// failures, including recovered panics.
	CommandError ErrorCode = 5

	// BadMessageData means a command produced a success result that
	// cannot be represented as a structured response payload.
	BadMessageData ErrorCode = 6
)

// String returns the protocol name of the code, for logs.
func (c ErrorCode) String() string {
	switch c {
	case NotSpecified:
		return "NOT_SPECIFIED"
	case InvalidJSON:
		return "INVALID_JSON"
	case UnknownCommand:
		return "UNKNOWN_COMMAND"
	case MessageError:
		return "MESSAGE_ERROR"
	case OSError:
		return "OS_ERROR"
	case CommandError:
		return "COMMAND_ERROR"
	case BadMessageData:
		return "BAD_MSG_DATA_ERROR"
	}
	return "UNKNOWN"
}
