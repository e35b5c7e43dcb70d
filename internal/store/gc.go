// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
)

// RunGC rewrites value-log files until badger reports nothing left to reclaim.
// In-memory databases have no value log and return immediately.
func (d *DB) RunGC() error {
	if d.cfg.InMemory {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.StoreGCDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		err := d.db.RunValueLogGC(d.cfg.GCDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// GCService runs value-log GC on an interval as a supervised service.
type GCService struct {
	db       *DB
	interval time.Duration
}

// NewGCService creates the GC loop. A zero interval defaults to ten minutes.
func NewGCService(db *DB, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.db.RunGC(); err != nil {
				logging.Error().Err(err).Msg("store GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *GCService) String() string {
	return "store-gc"
}
