// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package arbiter

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/warden-systems/warden/lib/clock"
)

// managedProcess is one supervised OS process. The watcher spawns it in
// its own process group so signals reach the whole subtree.
type managedProcess struct {
	pid       int
	startedAt time.Time

	// exited closes when the process has been waited on. The exit
	// status is readable afterwards via exitError.
	exited    chan struct{}
	exitError error
}

// spawn starts one process for the given argv. The process gets its own
// process group; stdout and stderr are discarded (supervised programs
// own their own logging).
func spawn(argv []string, workingDir string, env map[string]string, startedAt time.Time) (*managedProcess, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(env) > 0 {
		cmd.Env = os.Environ()
		keys := make([]string, 0, len(env))
		for key := range env {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			cmd.Env = append(cmd.Env, key+"="+env[key])
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning %s: %w", argv[0], err)
	}

	process := &managedProcess{
		pid:       cmd.Process.Pid,
		startedAt: startedAt,
		exited:    make(chan struct{}),
	}
	go func() {
		process.exitError = cmd.Wait()
		close(process.exited)
	}()
	return process, nil
}

// alive reports whether the process has not been reaped yet.
func (p *managedProcess) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// signal delivers sig to the process's group.
func (p *managedProcess) signal(sig unix.Signal) error {
	if err := unix.Kill(-p.pid, sig); err != nil {
		return fmt.Errorf("signaling process group %d with %s: %w", p.pid, unix.SignalName(sig), err)
	}
	return nil
}

// awaitExit waits for the process to exit until the deadline. Returns
// true when it exited in time.
func (p *managedProcess) awaitExit(clk clock.Clock, deadline time.Time) bool {
	remaining := deadline.Sub(clk.Now())
	if remaining <= 0 {
		return !p.alive()
	}
	select {
	case <-p.exited:
		return true
	case <-clk.After(remaining):
		return false
	}
}
