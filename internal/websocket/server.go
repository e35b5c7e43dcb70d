// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/logging"
)

// Server turns upgraded sockets into running connections.
type Server struct {
	hub  *Hub
	deps Deps
	cfg  Config
}

// NewServer creates a Server that registers connections in hub.
func NewServer(hub *Hub, deps Deps, cfg Config) *Server {
	return &Server{hub: hub, deps: deps, cfg: cfg.withDefaults()}
}

// Hub returns the connection registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Accept starts the sync protocol on ws. It returns nil, after closing ws
// with 1001, when the hub is draining.
func (s *Server) Accept(ws *websocket.Conn, remoteAddr, headerToken string) *Conn {
	client := NewClient(ws)
	conn := NewConn(ConnInfo{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		HeaderToken: headerToken,
	}, client, s.deps, s.cfg)

	if !s.hub.Register(conn) {
		logging.Debug().Str("remote_addr", remoteAddr).Msg("refusing socket while draining")
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = ws.Close() // Explicitly ignore error - best-effort cleanup
		return nil
	}
	client.Start(conn)
	go conn.Run()
	return conn
}
