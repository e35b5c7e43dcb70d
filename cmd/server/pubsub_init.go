// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/pubsub"
)

// pubsubConfigFrom maps application settings onto the bridge transport.
// natsURL overrides the configured URL when an embedded server is running.
func pubsubConfigFrom(cfg config.PubSubConfig, natsURL string) pubsub.Config {
	pc := pubsub.DefaultConfig()
	pc.Backend = cfg.Backend
	pc.NATSURL = cfg.NATSURL
	if natsURL != "" {
		pc.NATSURL = natsURL
	}
	pc.RedisAddr = cfg.RedisAddr
	pc.RedisPassword = cfg.RedisPassword
	pc.RedisDB = cfg.RedisDB
	pc.MaxReconnects = cfg.MaxReconnects
	if cfg.ReconnectWait > 0 {
		pc.ReconnectWait = cfg.ReconnectWait
	}
	if cfg.CloseTimeout > 0 {
		pc.CloseTimeout = cfg.CloseTimeout
	}
	if cfg.BreakerFailureThreshold > 0 {
		pc.Breaker.FailureThreshold = cfg.BreakerFailureThreshold
	}
	if cfg.BreakerTimeout > 0 {
		pc.Breaker.Timeout = cfg.BreakerTimeout
	}
	return pc
}

// initPubSub starts the embedded NATS server when requested and opens the
// bridge. The returned server is nil unless embedded mode is enabled.
func initPubSub(cfg config.PubSubConfig, debug bool) (*pubsub.Bridge, *pubsub.EmbeddedServer, error) {
	var embedded *pubsub.EmbeddedServer
	natsURL := ""

	if cfg.Backend == pubsub.BackendNATS && cfg.EmbeddedNATS {
		ec := pubsub.DefaultEmbeddedConfig()
		ec.Host = cfg.EmbeddedHost
		ec.Port = cfg.EmbeddedPort
		ec.Debug = debug

		var err error
		embedded, err = pubsub.NewEmbeddedServer(ec)
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("embedded NATS server started")
	}

	pc := pubsubConfigFrom(cfg, natsURL)
	backend, err := pubsub.NewBackend(pc, logging.NewWatermillLogger())
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, nil, fmt.Errorf("open %s pub/sub backend: %w", pc.Backend, err)
	}

	logging.Info().Str("backend", pc.Backend).Msg("pub/sub bridge ready")
	return pubsub.NewBridge(backend, pc.Breaker), embedded, nil
}
