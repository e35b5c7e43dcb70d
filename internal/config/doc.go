// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package config provides centralized configuration management for Threadsync.

Configuration is assembled by LoadWithKoanf from three layers, each
overriding the previous one:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, then config.yaml, config.yml,
    /etc/threadsync/config.yaml and /etc/threadsync/config.yml
 3. Environment variables listed in envMappings

Only mapped environment variables are read. Anything else in the process
environment is ignored.

# Configuration Structure

  - ServerConfig: HTTP listener, header timeout, graceful shutdown window
  - StoreConfig: Badger directory, in-memory mode, value-log GC
  - AuthConfig: session cookie name, signing secret, lifetime and the
    minimum client code version per platform
  - SyncConfig: socket liveness, activity quiet period, state check
    frequency, per-socket rate limit, retention of sessions and updates
  - PubSubConfig: bridge backend (channel, nats or redis) and its circuit
    breaker
  - SecurityConfig: allowed WebSocket origins and the upgrade rate limit
  - LoggingConfig: zerolog level, format and caller info

# Environment Variables

Server:
  - HTTP_HOST (default 0.0.0.0), HTTP_PORT (default 8080)
  - HTTP_READ_HEADER_TIMEOUT (default 10s), SHUTDOWN_TIMEOUT (default 15s)
  - ENVIRONMENT: development, staging or production

Store:
  - STORE_PATH (default /data/threadsync), STORE_IN_MEMORY, STORE_SYNC_WRITES
  - STORE_GC_INTERVAL (default 10m), STORE_GC_DISCARD_RATIO (default 0.5)

Auth:
  - COOKIE_SECRET (required, at least 32 characters)
  - COOKIE_NAME (default threadsync), COOKIE_LIFETIME (default 720h)
  - MIN_IOS_VERSION, MIN_ANDROID_VERSION, MIN_WEB_VERSION (0 disables the check)

Sync:
  - SOCKET_LIVENESS_TIMEOUT (60s), ACTIVITY_QUIET_PERIOD (3s)
  - ACTIVITY_REFRESH_INTERVAL (1m), STATE_CHECK_FREQUENCY (3m)
  - MESSAGES_PER_THREAD (20), SOCKET_RATE_LIMIT (20/s), SOCKET_RATE_BURST (40)
  - SOCKET_CLEANUP_TIMEOUT (5s), SESSION_TTL (720h), UPDATE_RETENTION (168h)
  - ACTIVITY_TTL (10m)

Pub/sub:
  - PUBSUB_BACKEND: channel (default), nats or redis
  - NATS_URL, NATS_EMBEDDED, NATS_EMBEDDED_HOST, NATS_EMBEDDED_PORT
  - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
  - PUBSUB_MAX_RECONNECTS, PUBSUB_RECONNECT_WAIT, PUBSUB_CLOSE_TIMEOUT
  - PUBSUB_BREAKER_THRESHOLD, PUBSUB_BREAKER_TIMEOUT

Security:
  - CORS_ORIGINS: comma-separated list, * is rejected in production
  - ALLOW_EMPTY_ORIGIN (default true, for native clients)
  - UPGRADE_RATE_LIMIT (30), UPGRADE_RATE_WINDOW (1m), DISABLE_RATE_LIMIT
  - TRUST_FORWARDED_FOR

Logging:
  - LOG_LEVEL: trace, debug, info, warn, error
  - LOG_FORMAT: json or console
  - LOG_CALLER

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(cfg.Server.Addr())
*/
package config
