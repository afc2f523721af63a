// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden is the command-line client for the warden daemon. It sends one
// control command over the daemon's control socket and prints the JSON
// reply.
//
// Usage:
//
//	warden [flags] <command> [key=value ...]
//
// Property values are parsed as JSON when possible (numbers, booleans)
// and fall back to plain strings, so "nb=2" sends a number and
// "name=web" a string.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-systems/warden/lib/config"
	"github.com/warden-systems/warden/lib/process"
	"github.com/warden-systems/warden/lib/transport"
	"github.com/warden-systems/warden/lib/version"
	"github.com/warden-systems/warden/lib/wire"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		endpoint string
		timeout  time.Duration
		cast     bool
		wait     bool
	)

	flagSet := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	flagSet.StringVar(&endpoint, "endpoint", config.DefaultEndpoint, "daemon control endpoint (tcp://host:port or unix:///path)")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	flagSet.BoolVar(&cast, "cast", false, "fire-and-forget: send the command without waiting for a reply")
	flagSet.BoolVar(&wait, "wait", false, "ask the daemon to complete the action before replying (sets the waiting property)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("warden %s\n", version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("command required")
	}

	properties, err := parseProperties(args[1:])
	if err != nil {
		return err
	}
	if wait {
		properties["waiting"] = true
	}
	payload, err := encodeRequest(args[0], properties, cast)
	if err != nil {
		return err
	}

	client, err := transport.Dial(endpoint, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if cast {
		return client.Cast(payload, timeout)
	}

	reply, err := client.Request(payload, timeout)
	if err != nil {
		return err
	}
	return printReply(reply)
}

// parseProperties turns key=value arguments into a property mapping.
// Values that parse as JSON keep their JSON type; everything else is a
// string.
func parseProperties(args []string) (map[string]any, error) {
	properties := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid property %q (want key=value)", arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			properties[key] = parsed
		} else {
			properties[key] = value
		}
	}
	return properties, nil
}

func encodeRequest(command string, properties map[string]any, cast bool) ([]byte, error) {
	request := map[string]any{
		"command":    command,
		"properties": properties,
	}
	if cast {
		request["msg_type"] = "cast"
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return payload, nil
}

// printReply pretty-prints the reply document. Error replies become a
// non-zero exit with the daemon's reason on stderr.
func printReply(reply []byte) error {
	var document map[string]any
	if err := json.Unmarshal(reply, &document); err != nil {
		// The empty-command reply is plain text; pass it through.
		fmt.Println(string(reply))
		return fmt.Errorf("daemon sent a non-JSON reply")
	}

	pretty, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))

	if document["status"] == wire.StatusError {
		reason, _ := document["reason"].(string)
		return fmt.Errorf("command failed: %s", reason)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `warden — control client for the warden daemon

Usage:
  warden [flags] <command> [key=value ...]

Commands include:
  ping, list, status, stats, numwatchers, numprocesses,
  start, stop, restart, incr, decr, signal, quit

Examples:
  warden status
  warden incr name=web nb=2
  warden signal name=web signum=HUP
  warden --cast quit

Flags:
%s`, flagSet.FlagUsages())
}
