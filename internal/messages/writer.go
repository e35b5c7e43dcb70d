// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package messages

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/store"
)

// Publisher pushes new messages to a user's live connections.
type Publisher interface {
	PublishMessages(ctx context.Context, userID string, msgs []models.RawMessageInfo) error
}

// ThreadReader looks up thread membership.
type ThreadReader interface {
	Thread(ctx context.Context, id string) (*models.Thread, error)
}

// Writer persists messages and publishes them.
type Writer struct {
	log     *Log
	threads ThreadReader
	pub     Publisher
	clock   *store.Clock
}

// NewWriter creates a Writer.
func NewWriter(log *Log, threads ThreadReader, pub Publisher, clock *store.Clock) *Writer {
	return &Writer{log: log, threads: threads, pub: pub, clock: clock}
}

// Create assigns IDs and times, persists msgs and publishes them to every
// member of their threads. Persisting happens first so a push never names a
// message the log cannot serve. Publish failures are logged, not returned:
// clients catch up on reconnect.
func (w *Writer) Create(ctx context.Context, msgs []models.RawMessageInfo) ([]models.RawMessageInfo, error) {
	out := make([]models.RawMessageInfo, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.Time = w.clock.Next()
		out[i] = m
	}
	if err := w.log.Append(ctx, out); err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}

	byUser := make(map[string][]models.RawMessageInfo)
	var order []string
	for _, m := range out {
		thread, err := w.threads.Thread(ctx, m.ThreadID)
		if err != nil {
			return out, fmt.Errorf("load thread %s: %w", m.ThreadID, err)
		}
		for _, userID := range thread.MemberIDs() {
			if _, ok := byUser[userID]; !ok {
				order = append(order, userID)
			}
			byUser[userID] = append(byUser[userID], m)
		}
	}
	for _, userID := range order {
		if err := w.pub.PublishMessages(ctx, userID, byUser[userID]); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Int("count", len(byUser[userID])).
				Msg("failed to publish new messages")
		}
	}
	return out, nil
}
