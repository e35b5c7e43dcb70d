// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package updates is the per-user update log.

Every change a user's clients must learn about is appended here as a raw
update (thread changed, entry edited, thread joined, ...). A reconnecting
session asks for everything after its watermark; the fetcher returns the
updates in log order, hydrated against the current snapshots and the
session's calendar query, together with the users they reference.

Updates are either shared by all of a user's sessions or targeted at a single
session. Acknowledging updates deletes only the targeted ones; shared updates
expire through the log TTL.

Key layout (see package store):

	update:<user>:<time>:<id>
*/
package updates
