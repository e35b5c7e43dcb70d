// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package session tracks the server side of each sync session.

A session outlives any one connection: a client reconnecting with the same
session identifier and reconcilable watermarks is "continued" and receives an
incremental sync instead of a full one. The Manager makes that decision,
starts fresh sessions for the full-sync path and commits watermark, query and
validation changes.

Storage is behind the Store interface. BadgerStore persists records in the
shared store; MemoryStore is for tests.
*/
package session
