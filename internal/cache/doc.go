// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package cache provides a small in-memory LRU with TTL expiry.

The pub/sub bridge uses it to drop events a broker redelivers after a
reconnect:

	seen := cache.NewLRU[struct{}](1024, time.Minute)
	if seen.Seen(msg.UUID) {
	    continue
	}

Values are generic, so the same type also serves as a bounded lookup cache.
*/
package cache
