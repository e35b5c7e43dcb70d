// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/protocol"
)

// setupWebSocketServer serves the sync protocol through Server.Accept.
func setupWebSocketServer(t *testing.T, h *harness) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(NewHub(), h.deps, h.cfg)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		srv.Accept(ws, r.RemoteAddr, h.authn.HeaderToken(r))
	}))
	t.Cleanup(ts.Close)
	return srv, ts
}

// dialWebSocket connects to ts, sending token as the session cookie.
func dialWebSocket(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", testCookieName+"="+token)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readServerMessage(t *testing.T, ws *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(waitTimeout)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	return msg
}

func writeClientMessage(t *testing.T, ws *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func TestClient_EndToEndSyncAndShutdown(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	token, _ := h.userToken(t, h.world.Alice.ID, webDetails)
	srv, ts := setupWebSocketServer(t, h)
	ws := dialWebSocket(t, ts, token)

	writeClientMessage(t, ws, initialMessage(1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()}))
	msg := readServerMessage(t, ws)
	sync, ok := msg.(*protocol.StateSyncMessage)
	if !ok {
		t.Fatalf("got %T, want StateSyncMessage", msg)
	}
	if _, ok := sync.Payload.(protocol.FullStateSync); !ok {
		t.Errorf("payload = %T, want FullStateSync", sync.Payload)
	}

	writeClientMessage(t, ws, &protocol.PingMessage{ID: 2})
	if pong, ok := readServerMessage(t, ws).(*protocol.PongMessage); !ok || pong.ResponseTo != 2 {
		t.Errorf("got %+v, want PONG for 2", pong)
	}
	conns := srv.Hub().ForUser(h.world.Alice.ID)
	if len(conns) != 1 {
		t.Fatalf("ForUser returned %d connections, want 1", len(conns))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := srv.Hub().Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want close 1001", err)
	}
}

func TestClient_DeauthorizedCloseCode(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	_, ts := setupWebSocketServer(t, h)
	ws := dialWebSocket(t, ts, "forged")

	writeClientMessage(t, ws, initialMessage(1, protocol.SessionIdentification{},
		protocol.SessionState{CalendarQuery: h.world.Query()}))
	if _, ok := readServerMessage(t, ws).(*protocol.AuthErrorMessage); !ok {
		t.Fatal("expected AUTH_ERROR")
	}
	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, protocol.CloseDeauthorized) {
		t.Errorf("read = %v, want close %d", err, protocol.CloseDeauthorized)
	}
}

func TestClient_RefusedWhileDraining(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	srv, ts := setupWebSocketServer(t, h)
	if err := srv.Hub().Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	ws := dialWebSocket(t, ts, "")
	_ = ws.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read = %v, want close 1001", err)
	}
}

func TestClient_SendAfterCloseFails(t *testing.T) {
	c := &Client{send: make(chan outbound, 2), done: make(chan struct{})}
	if err := c.Send([][]byte{[]byte("a")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.Close(websocket.CloseNormalClosure, "bye")
	if err := c.Send([][]byte{[]byte("b")}); err != ErrClientClosed {
		t.Errorf("Send after Close = %v, want ErrClientClosed", err)
	}
}

func TestClient_SendBufferFull(t *testing.T) {
	c := &Client{send: make(chan outbound, 1), done: make(chan struct{})}
	err := c.Send([][]byte{[]byte("a"), []byte("b")})
	if err != ErrSendBufferFull {
		t.Errorf("Send = %v, want ErrSendBufferFull", err)
	}
}

func TestClient_Constants(t *testing.T) {
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"writeWait", writeWait, 10 * time.Second},
		{"pongWait", pongWait, 60 * time.Second},
		{"pingPeriod", pingPeriod, 54 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if pingPeriod >= pongWait {
		t.Error("pingPeriod must be shorter than pongWait")
	}
	if maxMessageSize != 512*1024 {
		t.Errorf("maxMessageSize = %d", maxMessageSize)
	}
}
