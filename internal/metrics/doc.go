// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package metrics provides Prometheus instrumentation for Threadsync.

Collectors are registered with promauto at package init and exposed through
the /metrics route. Components call the Record* helpers rather than touching
the vectors directly so label values stay consistent.

Metric families:

  - sync_socket_*: open sockets, message traffic by type, errors, close codes
  - sync_state_*: STATE_SYNC kinds and consistency-check outcomes
  - sync_bridge_*: pub/sub bridge publishes and deliveries
  - sync_fetch_duration_seconds, sync_store_gc_duration_seconds
  - sync_http_*: HTTP request counts, latency and in-flight gauge
*/
package metrics
