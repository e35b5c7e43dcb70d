// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package services

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/threadsync/internal/logging"
)

// RunningChecker matches *pubsub.EmbeddedServer.
type RunningChecker interface {
	IsRunning() bool
}

// DefaultNATSCheckInterval is how often the watchdog polls the server.
const DefaultNATSCheckInterval = 5 * time.Second

// EmbeddedNATSService watches the in-process NATS server the bridge
// publishes through. It does not stop the server: the bridge must close
// first, so the owner shuts the server down after the tree returns.
//
// An embedded server cannot be restarted in place, so if it stops while the
// process is running the watchdog terminates the whole tree and lets the
// orchestrator restart the process.
type EmbeddedNATSService struct {
	server   RunningChecker
	interval time.Duration
}

// NewEmbeddedNATSService creates a watchdog polling at interval
// (DefaultNATSCheckInterval when <= 0).
func NewEmbeddedNATSService(server RunningChecker, interval time.Duration) *EmbeddedNATSService {
	if interval <= 0 {
		interval = DefaultNATSCheckInterval
	}
	return &EmbeddedNATSService{server: server, interval: interval}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !s.server.IsRunning() {
			logging.Error().Msg("embedded NATS server stopped unexpectedly, terminating")
			return suture.ErrTerminateSupervisorTree
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *EmbeddedNATSService) String() string {
	return "embedded-nats"
}
