// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/store"
	ws "github.com/tomtom215/threadsync/internal/websocket"
)

const testCookieName = "threadsync"

// cookieTokens reads the session cookie the way the authenticator does.
type cookieTokens struct{}

func (cookieTokens) HeaderToken(r *http.Request) string {
	c, err := r.Cookie(testCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

type testEnv struct {
	handler *Handler
	hub     *ws.Hub
	bridge  *pubsub.Bridge
	db      *store.DB
	server  *httptest.Server
}

// newTestEnv builds a handler over an in-memory store and channel bridge.
// Sockets accepted here never get past INITIAL, so the sync dependencies
// stay empty.
func newTestEnv(t *testing.T, sec config.SecurityConfig) *testEnv {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	backend, err := pubsub.NewBackend(pubsub.DefaultConfig(), logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	bridge := pubsub.NewBridge(backend, pubsub.DefaultBreakerConfig())

	hub := ws.NewHub()
	srv := ws.NewServer(hub, ws.Deps{}, ws.Config{})
	h := NewHandler(srv, cookieTokens{}, bridge, db, sec)

	cfg := ChiMiddlewareConfigFrom(sec)
	ts := httptest.NewServer(NewRouter(h, NewChiMiddleware(cfg)).SetupChi())

	env := &testEnv{handler: h, hub: hub, bridge: bridge, db: db, server: ts}
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		_ = bridge.Close()
		_ = db.Close()
	})
	return env
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
}

func openSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		CORSOrigins:       []string{"https://app.example"},
		AllowEmptyOrigin:  true,
		UpgradeRateLimit:  100,
		UpgradeRateWindow: time.Minute,
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		allowEmpty bool
		origin     string
		want       bool
	}{
		{"listed origin", []string{"https://app.example"}, false, "https://app.example", true},
		{"listed origin case-insensitive", []string{"https://app.example"}, false, "https://APP.example", true},
		{"wildcard", []string{"*"}, false, "https://anything.example", true},
		{"unlisted origin", []string{"https://app.example"}, true, "https://evil.example", false},
		{"empty origin allowed", []string{"https://app.example"}, true, "", true},
		{"empty origin refused", []string{"https://app.example"}, false, "", false},
		{"no origins configured", nil, false, "https://app.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handler{security: config.SecurityConfig{CORSOrigins: tt.origins, AllowEmptyOrigin: tt.allowEmpty}}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkWebSocketOrigin(req); got != tt.want {
				t.Errorf("checkWebSocketOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://app.example", "https://app.example"},
		{"evil\nINFO forged", "evil\\x0aINFO forged"},
		{"tab\there", "tab\\x09here"},
		{strings.Repeat("a", maxLoggedValueLength+10), strings.Repeat("a", maxLoggedValueLength) + "..."},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWebSocket_UpgradeReachesSyncProtocol(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	header := http.Header{}
	header.Set("Cookie", testCookieName+"=some-token")
	conn, resp, err := gorilla.DefaultDialer.Dial(env.wsURL(), header)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}

	data, err := protocol.EncodeClientMessage(&protocol.PingMessage{ID: 5})
	if err != nil {
		t.Fatalf("EncodeClientMessage: %v", err)
	}
	if err := conn.WriteMessage(gorilla.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.DecodeServerMessage(reply)
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	errMsg, ok := msg.(*protocol.ErrorMessage)
	if !ok || errMsg.Message != protocol.ErrMsgUninitialized {
		t.Fatalf("reply = %+v, want %s", msg, protocol.ErrMsgUninitialized)
	}
	if errMsg.ResponseTo == nil || *errMsg.ResponseTo != 5 {
		t.Errorf("responseTo = %v, want 5", errMsg.ResponseTo)
	}
	if n := env.hub.GetClientCount(); n != 1 {
		t.Errorf("hub clients = %d, want 1", n)
	}
}

func TestWebSocket_RejectsUnlistedOrigin(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := gorilla.DefaultDialer.Dial(env.wsURL(), header)
	if err == nil {
		t.Fatal("Dial succeeded from an unlisted origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
	if n := env.hub.GetClientCount(); n != 0 {
		t.Errorf("hub clients = %d, want 0", n)
	}
}

func TestWebSocket_PlainGETIsBadRequest(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	resp, err := http.Get(env.server.URL + "/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocket_RefusedWhileDraining(t *testing.T) {
	env := newTestEnv(t, openSecurity())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, resp, err := gorilla.DefaultDialer.Dial(env.wsURL(), nil)
	if err == nil {
		t.Fatal("Dial succeeded while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestWebSocket_UpgradeRateLimit(t *testing.T) {
	sec := openSecurity()
	sec.UpgradeRateLimit = 1
	env := newTestEnv(t, sec)

	conn, _, err := gorilla.DefaultDialer.Dial(env.wsURL(), nil)
	if err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	defer conn.Close()

	_, resp, err := gorilla.DefaultDialer.Dial(env.wsURL(), nil)
	if err == nil {
		t.Fatal("second Dial should be rate limited")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("response = %v, want 429", resp)
	}
}
