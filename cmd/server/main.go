// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/store"
	"github.com/tomtom215/threadsync/internal/supervisor"
	"github.com/tomtom215/threadsync/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("threadsync stopped with error")
		stop()
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

// run builds the components, serves them under the supervisor tree until
// ctx ends, then releases the shared resources in order.
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("environment", cfg.Server.Environment).
		Str("pubsub_backend", cfg.PubSub.Backend).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting threadsync")

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		comps.close(closeCtx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           comps.handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	tree, err := buildTree(cfg, comps, httpServer)
	if err != nil {
		return err
	}

	logging.Info().Msg("Starting supervisor tree...")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildTree places each long-running component in its layer. The tree
// shutdown timeout covers the HTTP drain plus the hub drain.
func buildTree(cfg *config.Config, comps *components, httpServer services.HTTPServer) (*supervisor.SupervisorTree, error) {
	treeCfg := supervisor.DefaultTreeConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout + 5*time.Second
	}
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Store.GCInterval > 0 && !cfg.Store.InMemory {
		tree.AddDataService(store.NewGCService(comps.db, cfg.Store.GCInterval))
	}

	tree.AddMessagingService(services.NewHubService(comps.hub))
	if comps.embedded != nil {
		tree.AddMessagingService(services.NewEmbeddedNATSService(comps.embedded, 0))
	}

	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.Addr(), cfg.Server.ShutdownTimeout))
	return tree, nil
}
