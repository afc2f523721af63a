// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"math"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/warden-systems/warden/lib/wire"
)

// stringProperty extracts a string property. Returns ("", nil) when the
// key is absent.
func stringProperty(properties wire.Properties, key string) (string, error) {
	value, present := properties[key]
	if !present {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", Errorf("property %q must be a string", key)
	}
	return s, nil
}

// intProperty extracts an integer property, accepting the float64 that
// JSON decoding produces. Returns (fallback, nil) when the key is
// absent.
func intProperty(properties wire.Properties, key string, fallback int) (int, error) {
	value, present := properties[key]
	if !present {
		return fallback, nil
	}
	switch n := value.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, Errorf("property %q must be an integer", key)
		}
		return int(n), nil
	case int:
		return n, nil
	}
	return 0, Errorf("property %q must be an integer", key)
}

// watcherProperty resolves the optional "name" property to a watcher.
// Returns (nil, nil) when no name was given; an unknown name is a
// request-semantic error.
func watcherProperty(arbiter Arbiter, properties wire.Properties) (WatcherRef, error) {
	name, err := stringProperty(properties, "name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	watcher, ok := arbiter.Watcher(name)
	if !ok {
		return nil, Errorf("program %s not found", name)
	}
	return watcher, nil
}

// requiredWatcher is watcherProperty with the name mandatory.
func requiredWatcher(arbiter Arbiter, properties wire.Properties) (WatcherRef, error) {
	watcher, err := watcherProperty(arbiter, properties)
	if err != nil {
		return nil, err
	}
	if watcher == nil {
		return nil, Errorf("property %q is required", "name")
	}
	return watcher, nil
}

// parseSignal resolves a "signum" property value: an integer signal
// number or a name like "TERM", "SIGTERM", "hup".
func parseSignal(value any) (unix.Signal, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || v <= 0 {
			return 0, Errorf("signal number %v out of range", v)
		}
		return unix.Signal(int(v)), nil
	case string:
		name := strings.ToUpper(v)
		if !strings.HasPrefix(name, "SIG") {
			name = "SIG" + name
		}
		sig := unix.SignalNum(name)
		if sig == 0 {
			return 0, Errorf("unknown signal %q", v)
		}
		return sig, nil
	}
	return 0, Errorf("property %q must be a signal number or name", "signum")
}
