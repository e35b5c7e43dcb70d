// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package state stores the thread, calendar entry and user snapshots that the
// sync protocol serves. It is the persistence collaborator behind full state
// syncs, update hydration and consistency checks; mutating endpoints that
// would normally write here live outside this server, so the write methods
// are used by seeding and tests.
package state
