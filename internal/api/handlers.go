// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"net/http"
	"strings"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/store"
	ws "github.com/tomtom215/threadsync/internal/websocket"
)

// HeaderTokenSource extracts the session cookie from an upgrade request.
type HeaderTokenSource interface {
	HeaderToken(r *http.Request) string
}

// Handler contains dependencies for the HTTP endpoints.
//
// Handler methods are split across files:
//   - handlers.go: WebSocket upgrade and origin policy
//   - handlers_health.go: health, liveness and readiness probes
type Handler struct {
	server    *ws.Server
	tokens    HeaderTokenSource
	bridge    *pubsub.Bridge
	db        *store.DB
	security  config.SecurityConfig
	startTime time.Time
}

// NewHandler creates the HTTP handler.
//
// Dependencies:
//   - server: turns upgraded sockets into sync connections
//   - tokens: reads the session cookie from the upgrade request
//   - bridge: reported by health checks (may be nil)
//   - db: reported by health checks (may be nil)
//   - security: origin allow-list
func NewHandler(server *ws.Server, tokens HeaderTokenSource, bridge *pubsub.Bridge, db *store.DB, security config.SecurityConfig) *Handler {
	return &Handler{
		server:    server,
		tokens:    tokens,
		bridge:    bridge,
		db:        db,
		security:  security,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() gorilla.Upgrader {
	return gorilla.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
// Native clients send no Origin; they are admitted only when
// AllowEmptyOrigin is set.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if !h.security.AllowEmptyOrigin {
			logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		}
		return h.security.AllowEmptyOrigin
	}

	for _, allowed := range h.security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the request and hands the socket to the sync server.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.server.Hub().Draining() {
		NewResponseWriter(w, r).ServiceUnavailable("Server is shutting down")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).
			Str("remote_addr", sanitizeLogValue(r.RemoteAddr)).
			Msg("WebSocket upgrade failed")
		return
	}

	c := h.server.Accept(conn, r.RemoteAddr, h.tokens.HeaderToken(r))
	if c == nil {
		return
	}
	logging.Ctx(r.Context()).Debug().
		Str("conn_id", c.ID()).
		Str("remote_addr", sanitizeLogValue(r.RemoteAddr)).
		Msg("WebSocket connection accepted")
}
