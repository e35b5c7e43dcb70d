// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package main is the entry point for the threadsync server.

Threadsync keeps chat clients in sync over a WebSocket. A client opens /ws,
sends INITIAL with its session state, receives a full or incremental
STATE_SYNC and then gets pushed updates and messages as they are written.

# Process Layout

	threadsync (root)
	├── data-layer
	│   └── store-gc        (on-disk stores only)
	├── messaging-layer
	│   ├── socket-hub
	│   └── embedded-nats   (PUBSUB_BACKEND=nats, NATS_EMBEDDED=true)
	└── api-layer
	    └── http-server     /ws, /health, /metrics

Startup order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog
 3. Store: BadgerDB, on disk or in memory
 4. Pub/sub: optional embedded NATS, then the Watermill bridge
 5. Sync components: cookies, sessions, message and update logs, activity
 6. HTTP router: chi with CORS, rate limits and Prometheus metrics
 7. Supervisor tree

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server stops accepting
upgrades, the hub closes every socket with 1001 after in-flight replies are
written, and then the bridge, embedded NATS server and store are closed in
that order.

# Example Usage

	export COOKIE_SECRET=$(openssl rand -base64 32)
	export STORE_PATH=/var/lib/threadsync
	./threadsync

Two instances sharing a Redis bridge:

	export PUBSUB_BACKEND=redis
	export REDIS_ADDR=redis:6379
	./threadsync
*/
package main
