// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package updates

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

// Publisher pushes new raw updates to a user's live connections. A session
// named by excludeSessionID does not receive them.
type Publisher interface {
	PublishUpdates(ctx context.Context, userID string, raws []models.RawUpdate, excludeSessionID string) error
}

// CreateOptions tunes Writer.Create.
type CreateOptions struct {
	// ExcludeSessionID suppresses the push to the session that caused the
	// updates; it still sees them on its next incremental sync.
	ExcludeSessionID string
}

// Writer persists and publishes updates.
type Writer struct {
	log   *Log
	pub   Publisher
	clock *store.Clock
}

// NewWriter creates a Writer.
func NewWriter(log *Log, pub Publisher, clock *store.Clock) *Writer {
	return &Writer{log: log, pub: pub, clock: clock}
}

// Create assigns IDs and times, persists raws and publishes them grouped by
// user in producer order. Publish failures are logged; the log remains the
// source of truth.
func (w *Writer) Create(ctx context.Context, raws []models.RawUpdate, opts CreateOptions) ([]models.RawUpdate, error) {
	out := make([]models.RawUpdate, len(raws))
	for i, u := range raws {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		u.Time = w.clock.Next()
		out[i] = u
	}
	if err := w.log.Append(ctx, out); err != nil {
		return nil, fmt.Errorf("append updates: %w", err)
	}

	byUser := make(map[string][]models.RawUpdate)
	var order []string
	for _, u := range out {
		if _, ok := byUser[u.UserID]; !ok {
			order = append(order, u.UserID)
		}
		byUser[u.UserID] = append(byUser[u.UserID], u)
	}
	for _, userID := range order {
		if err := w.pub.PublishUpdates(ctx, userID, byUser[userID], opts.ExcludeSessionID); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Int("count", len(byUser[userID])).
				Msg("failed to publish new updates")
		}
	}
	return out, nil
}
