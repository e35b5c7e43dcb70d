// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/logging"
)

// ShutdownReason identifies why the hub is shutting down.
// This enables clear observability in logs and metrics.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

const (
	hubStatsInterval = time.Minute

	// hubDrainTimeout bounds how long RunWithContext waits for sockets to
	// finish their in-flight replies after cancellation.
	hubDrainTimeout = 5 * time.Second
)

// Hub is the registry of live connections.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	draining bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Register adds c and arranges for its removal when it closes. It returns
// false while the hub is draining; the caller should then refuse the socket.
func (h *Hub) Register(c *Conn) bool {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return false
	}
	h.conns[c.ID()] = c
	total := len(h.conns)
	h.mu.Unlock()

	c.OnClose(func() { h.Unregister(c) })
	logging.Debug().Str("conn_id", c.ID()).Int("total_clients", total).Msg("websocket client connected")
	return true
}

// Unregister removes c. It is safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if cur, ok := h.conns[c.ID()]; !ok || cur != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID())
	total := len(h.conns)
	h.mu.Unlock()
	logging.Debug().Str("conn_id", c.ID()).Int("total_clients", total).Msg("websocket client disconnected")
}

// Get returns the connection with id.
func (h *Hub) Get(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// ForUser returns the authenticated connections of userID, ordered by ID.
func (h *Hub) ForUser(userID string) []*Conn {
	h.mu.RLock()
	out := make([]*Conn, 0)
	for _, c := range h.conns {
		if userID != "" && c.UserID() == userID {
			out = append(out, c)
		}
	}
	h.mu.RUnlock()
	sortConns(out)
	return out
}

// GetClientCount returns the number of registered connections.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Draining reports whether Shutdown has started.
func (h *Hub) Draining() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.draining
}

// RunWithContext blocks until ctx is done, logging connection counts
// periodically, then closes every connection with 1001 going away.
// This method is designed for use with suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(hubStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			logging.Debug().Int("total_clients", h.GetClientCount()).Msg("websocket hub stats")
		}
	}
}

// Shutdown stops accepting connections, closes every live one with 1001 and
// waits for them to finish or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	conns := h.closeAllClients()
	for _, c := range conns {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// logGracefulShutdown drains all clients and logs the shutdown.
//
// Note: ctx.Err() is NOT logged as an error because context cancellation
// is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	reason := getShutdownReason(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), hubDrainTimeout)
	defer cancel()
	if err := h.Shutdown(drainCtx); err != nil {
		logging.Warn().Err(err).Int("remaining", h.GetClientCount()).Msg("websocket hub drain timed out")
	}

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients asks every connection to close, in ID order, and returns
// them. Connections unregister themselves once closed.
func (h *Hub) closeAllClients() []*Conn {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	sortConns(conns)

	for _, c := range conns {
		c.Shutdown(websocket.CloseGoingAway)
	}
	if len(conns) > 0 {
		logging.Info().Int("clients", len(conns)).Msg("closing all websocket clients")
	}
	return conns
}

func sortConns(conns []*Conn) {
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ID() < conns[j].ID()
	})
}
