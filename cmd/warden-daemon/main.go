// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden-daemon supervises a set of programs and exposes a control
// socket for managing them at runtime.
//
// On startup:
//  1. Loads the YAML configuration (programs, endpoint, intervals).
//  2. Registers one watcher per configured program.
//  3. Starts the autostart watchers.
//  4. Binds the control socket and serves commands until a quit
//     command or a termination signal arrives.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/warden-systems/warden/lib/arbiter"
	"github.com/warden-systems/warden/lib/clock"
	"github.com/warden-systems/warden/lib/command"
	"github.com/warden-systems/warden/lib/config"
	"github.com/warden-systems/warden/lib/controller"
	"github.com/warden-systems/warden/lib/process"
	"github.com/warden-systems/warden/lib/sighandler"
	"github.com/warden-systems/warden/lib/transport"
	"github.com/warden-systems/warden/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		endpoint    string
		checkDelay  time.Duration
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to the warden.yaml configuration file")
	flag.StringVar(&endpoint, "endpoint", "", "control endpoint, overriding the configuration (tcp://host:port or unix:///path)")
	flag.DurationVar(&checkDelay, "check-delay", 0, "maintenance interval, overriding the configuration")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("warden-daemon %s\n", version.Info())
		return nil
	}

	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if checkDelay > 0 {
		cfg.CheckDelay = config.Duration(checkDelay)
	}

	arb := arbiter.New(logger, clock.Real())
	for _, program := range cfg.Programs {
		watcherConfig, err := watcherConfig(program)
		if err != nil {
			return err
		}
		if _, err := arb.AddWatcher(watcherConfig); err != nil {
			return fmt.Errorf("registering program %q: %w", program.Name, err)
		}
	}

	signals := sighandler.Start(sighandler.Config{
		Quit: arb.Stop,
		Restart: func() {
			restartAll(arb, logger)
		},
		Logger: logger,
	})

	ctrl := controller.New(controller.Config{
		Transport:  transport.NewServer(cfg.Endpoint, logger),
		Registry:   command.Builtin(),
		Supervisor: arb,
		Signals:    signals,
		CheckDelay: cfg.CheckDelay.Std(),
		Logger:     logger,
	})

	if err := arb.StartAll(); err != nil {
		return fmt.Errorf("starting programs: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		arb.Stop()
		<-arb.Stopped()
		return fmt.Errorf("starting controller: %w", err)
	}
	logger.Info("daemon ready",
		"endpoint", cfg.Endpoint,
		"programs", len(cfg.Programs),
		"version", version.Short(),
	)

	// Block until a quit command or signal stops the arbiter.
	<-arb.Stopped()
	ctrl.Stop()
	logger.Info("daemon stopped")
	return nil
}

// restartAll restarts every watcher, continuing past individual
// failures.
func restartAll(arb *arbiter.Arbiter, logger *slog.Logger) {
	for _, name := range arb.WatcherNames() {
		watcher, ok := arb.Watcher(name)
		if !ok {
			continue
		}
		if err := watcher.Restart(); err != nil {
			logger.Error("restart failed", "watcher", name, "error", err)
		}
	}
}

// watcherConfig converts a configured program into a watcher
// definition.
func watcherConfig(program config.Program) (arbiter.WatcherConfig, error) {
	stopSignal, err := program.Signal()
	if err != nil {
		return arbiter.WatcherConfig{}, fmt.Errorf("program %q: %w", program.Name, err)
	}
	return arbiter.WatcherConfig{
		Name:         program.Name,
		Argv:         program.Cmd,
		NumProcesses: program.NumProcesses,
		WorkingDir:   program.WorkingDir,
		Env:          program.Env,
		StopSignal:   stopSignal,
		Autostart:    program.Autostart,
	}, nil
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
