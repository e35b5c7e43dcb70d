// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package middleware provides HTTP instrumentation for the sync server.

PrometheusMetrics records request counts, latency and in-flight requests in
the metrics package. Requests are labelled by chi route pattern rather than
raw path so that path parameters do not create new series.

The wrapped ResponseWriter implements http.Hijacker and http.Flusher, so the
middleware can sit in front of the WebSocket upgrade route:

	r := chi.NewRouter()
	r.Use(middleware.PrometheusMetrics)
	r.Get("/ws", handler.WebSocket)

A hijacked request is recorded with status 101 when the handler did not
write a status itself.
*/
package middleware
