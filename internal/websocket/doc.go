// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package websocket runs the sync protocol over gorilla/websocket.

Key Components:

  - Conn: the per-socket state machine. It authenticates INITIAL, answers
    every request with exactly one correlated reply, forwards bridge pushes
    and drives the periodic consistency check.
  - Client: read and write pumps between a gorilla socket and a Conn.
  - Hub: registry of live connections, drained with 1001 on shutdown.
  - Server: accepts upgraded sockets into the hub.

Architecture:

	gorilla socket ──readPump──┐
	                           ▼
	timers ───────────────► events ──► Conn.Run ──► Client.Send ──writePump──► socket
	                           ▲
	pubsub.Bridge ──► push queue

Each Conn owns its state from a single goroutine. Inbound frames, timer
firings and close requests are events on one channel; bridge pushes land in
an unbounded queue so a slow socket never stalls the bridge. Handling is
sequential, so replies leave in the order requests were handled while pushes
may interleave between them.

Connection States:

	uninitialized ──INITIAL──► authenticating ──► connected ──► closing ──► closed

Authorization failures close the socket with a stable code:

  - 4100 socket_deauthorized (AUTH_ERROR, possibly with a replacement cookie)
  - 4101 client_version_unsupported (AUTH_ERROR)
  - 4102 not_logged_in (ERROR)
  - 4103 session_mutated_from_socket (ERROR)

Everything else is reported as ERROR and the socket stays open.

Consistency Checks:

A check starts only when the client has been quiet for ActivityQuietPeriod,
no check is in flight and the session's last validation is older than the
check frequency. The client answers with hashes; a mismatch is repaired with
a follow-up CHECK_STATE request, and a match commits a new lastValidated.

Thread Safety:

Conn methods other than Run may be called from any goroutine. Hub and Client
are safe for concurrent use.
*/
package websocket
