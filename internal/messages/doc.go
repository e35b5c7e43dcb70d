// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package messages is the message log: storage, the per-thread windowed
// fetcher used for sync, and the writer that persists new messages and pushes
// them to every thread member through the bridge.
//
// Messages are keyed by thread and time, so a window is one reverse prefix
// scan. Windows are returned newest-first and capped per thread; a thread
// whose window was cut short is reported as truncated and the client must
// page explicitly to see the rest.
package messages
