// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package sighandler translates OS signals into daemon actions:
// SIGTERM, SIGINT, and SIGQUIT request shutdown, SIGHUP requests a
// restart of every supervised program.
package sighandler

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// Config assembles a Handler.
type Config struct {
	// Quit is invoked on SIGTERM, SIGINT, or SIGQUIT. Required.
	Quit func()

	// Restart is invoked on SIGHUP. Required.
	Restart func()

	// Logger receives signal diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Handler owns the signal subscription. Create with Start, release with
// Stop.
type Handler struct {
	logger   *slog.Logger
	quit     func()
	restart  func()
	signals  chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
}

// Start subscribes to the daemon's signal set and begins dispatching.
func Start(config Config) *Handler {
	if config.Quit == nil || config.Restart == nil {
		panic("sighandler.Start: Quit and Restart are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	h := &Handler{
		logger:  config.Logger,
		quit:    config.Quit,
		restart: config.Restart,
		signals: make(chan os.Signal, 4),
		done:    make(chan struct{}),
	}
	signal.Notify(h.signals, unix.SIGTERM, unix.SIGINT, unix.SIGQUIT, unix.SIGHUP)
	go h.loop()
	return h
}

// Stop unsubscribes and waits for the dispatch goroutine to exit.
// Idempotent, and safe to call from a Quit callback's downstream
// (dispatching continues on its own goroutine).
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.signals)
		close(h.signals)
		<-h.done
	})
}

func (h *Handler) loop() {
	defer close(h.done)
	for sig := range h.signals {
		switch sig {
		case unix.SIGHUP:
			h.logger.Info("signal received", "signal", "SIGHUP", "action", "restart")
			h.restart()
		case unix.SIGTERM, unix.SIGINT, unix.SIGQUIT:
			h.logger.Info("signal received", "signal", sig.String(), "action", "quit")
			h.quit()
		}
	}
}
