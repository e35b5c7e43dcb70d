// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the sync server:
// - socket connections, message traffic and close codes
// - consistency checks
// - pub/sub bridge delivery
// - fetcher and store latency
// - HTTP requests

var (
	// Socket Metrics
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_socket_connections_active",
			Help: "Number of open sync sockets",
		},
	)

	SocketMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_socket_messages_received_total",
			Help: "Client socket messages received, by message type",
		},
		[]string{"type"},
	)

	SocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_socket_messages_sent_total",
			Help: "Server socket messages sent, by message type",
		},
		[]string{"type"},
	)

	SocketErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_socket_errors_total",
			Help: "Errors reported to clients, by error message",
		},
		[]string{"error"},
	)

	SocketCloses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_socket_closes_total",
			Help: "Server-initiated socket closes, by close code",
		},
		[]string{"code"},
	)

	SocketHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_socket_handle_duration_seconds",
			Help:    "Time spent handling one client message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	StateSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_state_syncs_total",
			Help: "STATE_SYNC responses sent, by payload kind",
		},
		[]string{"kind"}, // "full", "incremental"
	)

	// Consistency Check Metrics
	StateChecksStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_state_checks_started_total",
			Help: "Consistency checks initiated by the server",
		},
	)

	StateCheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_state_check_results_total",
			Help: "Consistency check verdicts reported by clients",
		},
		[]string{"status"}, // "state_validated", "state_invalid"
	)

	InconsistencyReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_inconsistency_reports_total",
			Help: "Client-detected inconsistencies, by kind",
		},
		[]string{"kind"}, // "thread", "entry"
	)

	// Bridge Metrics
	BridgeEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_bridge_events_published_total",
			Help: "Events published to the pub/sub bridge, by event type",
		},
		[]string{"type"},
	)

	BridgeEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_bridge_events_delivered_total",
			Help: "Events delivered from the pub/sub bridge to sockets, by event type",
		},
		[]string{"type"},
	)

	BridgeDuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_bridge_duplicates_dropped_total",
			Help: "Redelivered bridge events dropped before reaching a socket",
		},
	)

	BridgePublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_bridge_publish_errors_total",
			Help: "Failed publishes to the pub/sub bridge",
		},
	)

	// Storage Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_fetch_duration_seconds",
			Help:    "Duration of log and snapshot fetches",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"fetcher"},
	)

	StoreGCDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_store_gc_duration_seconds",
			Help:    "Duration of badger value-log GC runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_http_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)
)

// RecordMessageReceived counts one inbound client message.
func RecordMessageReceived(messageType string) {
	SocketMessagesReceived.WithLabelValues(messageType).Inc()
}

// RecordMessageSent counts one outbound server message.
func RecordMessageSent(messageType string) {
	SocketMessagesSent.WithLabelValues(messageType).Inc()
}

// RecordSocketError counts an ERROR or AUTH_ERROR sent to a client.
func RecordSocketError(message string) {
	SocketErrors.WithLabelValues(message).Inc()
}

// RecordSocketClose counts a server-initiated close.
func RecordSocketClose(code int) {
	SocketCloses.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordHandle observes how long one client message took to handle.
func RecordHandle(messageType string, duration time.Duration) {
	SocketHandleDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

// RecordFetch observes a fetcher call.
func RecordFetch(fetcher string, duration time.Duration) {
	FetchDuration.WithLabelValues(fetcher).Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
