// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package services provides suture.Service wrappers for threadsync components.

Each wrapper turns a component lifecycle (ListenAndServe, RunWithContext,
a running flag) into suture's context-aware Serve method and names itself
through fmt.Stringer so supervisor events are readable.

# Available Services

HTTPServerService ("http-server") wraps *http.Server. Cancellation calls
Shutdown with the configured timeout. A listener failure is returned so the
supervisor retries the bind.

HubService ("socket-hub") wraps websocket.Hub.RunWithContext. When the tree
stops, the hub closes every socket with the "going away" status.

EmbeddedNATSService ("embedded-nats") is a watchdog for the in-process NATS
server. It never shuts the server down; the process owner does that after
the pub/sub bridge is closed. If the server dies the tree is terminated.
*/
package services
