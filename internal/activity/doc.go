// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package activity tracks which threads each live session has in focus.
//
// A focused thread is read by definition: focusing clears the unread flag.
// Unfocusing with a latest-seen message marks the thread unread again when
// newer messages from other users arrived meanwhile, unless another session
// of the same user still has it open. Focus rows carry a TTL that the
// connection refreshes periodically, so rows from crashed connections
// age out on their own.
package activity
