// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package api exposes the sync server over HTTP.

Routes:

	GET /ws            WebSocket upgrade into the sync protocol
	GET /health        dependency status (always 200)
	GET /health/live   liveness probe
	GET /health/ready  readiness probe, 503 while draining or degraded
	GET /metrics       Prometheus exposition

Every route passes through request ID tagging, panic recovery and request
metrics. X-Forwarded-For is honoured only when TRUST_FORWARDED_FOR is set.

The /ws route is rate limited per client address with go-chi/httprate.
Origins are checked by the upgrader against CORS_ORIGINS; an absent Origin
header (native apps) is accepted when ALLOW_EMPTY_ORIGIN is true. The
session cookie named by the authenticator is read from the upgrade request
and passed to the connection as its header token.

Health responses use the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
*/
package api
