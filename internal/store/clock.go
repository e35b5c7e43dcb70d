// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package store

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing millisecond timestamps, so records
// written by one process never share a time key and watermarks can be
// compared with a strict greater-than.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewClock returns a Clock reading the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockFrom returns a Clock reading now. Tests use it to pin time.
func NewClockFrom(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns a timestamp greater than every earlier result.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UnixMilli()
	if t <= c.last {
		t = c.last + 1
	}
	c.last = t
	return t
}
