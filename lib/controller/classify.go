// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/warden-systems/warden/lib/command"
	"github.com/warden-systems/warden/lib/wire"
)

// panicError carries a recovered panic out of command execution,
// together with the stack captured at the recovery point.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// classifyFailure maps a command-execution failure to a wire error
// response, in priority order: request-semantic errors, OS-level
// errors, then the catch-all. Only the catch-all carries internal
// detail (the raw request and, for panics, a stack trace).
func classifyFailure(err error, raw []byte) wire.Response {
	var messageErr *command.MessageError
	if errors.As(err, &messageErr) {
		return wire.Error(messageErr.Error(), "", wire.MessageError)
	}

	if isOSError(err) {
		return wire.Error(err.Error(), "", wire.OSError)
	}

	var panicked *panicError
	if errors.As(err, &panicked) {
		reason := fmt.Sprintf("command %q: %v", raw, panicked.value)
		return wire.Error(reason, panicked.stack, wire.CommandError)
	}

	reason := fmt.Sprintf("command %q: %v", raw, err)
	return wire.Error(reason, "", wire.CommandError)
}

// isOSError reports whether err originated in the operating
// environment: a failed syscall, path operation, signal delivery, or
// program spawn.
func isOSError(err error) bool {
	var (
		syscallErr *os.SyscallError
		pathErr    *fs.PathError
		linkErr    *os.LinkError
		execErr    *exec.Error
		errno      syscall.Errno
	)
	return errors.As(err, &syscallErr) ||
		errors.As(err, &pathErr) ||
		errors.As(err, &linkErr) ||
		errors.As(err, &execErr) ||
		errors.As(err, &errno)
}
