// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/threadsync/internal/config"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
	"github.com/tomtom215/threadsync/internal/pubsub"
	"github.com/tomtom215/threadsync/internal/testinfra"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Auth.CookieSecret = "0123456789abcdef0123456789abcdef"
	cfg.Store.InMemory = true
	cfg.Store.Path = ""
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Security.RateLimitDisabled = true
	return cfg
}

func TestVersionPolicy(t *testing.T) {
	p := versionPolicy(config.AuthConfig{MinIOSVersion: 40, MinWebVersion: 0, MinAndroidVersion: 12})

	tests := []struct {
		platform models.Platform
		want     int
		present  bool
	}{
		{models.PlatformIOS, 40, true},
		{models.PlatformAndroid, 12, true},
		{models.PlatformWeb, 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			got, ok := p.MinCodeVersion[tt.platform]
			if ok != tt.present || got != tt.want {
				t.Errorf("MinCodeVersion[%s] = %d, %v; want %d, %v", tt.platform, got, ok, tt.want, tt.present)
			}
		})
	}
}

func TestPubSubConfigFrom(t *testing.T) {
	cfg := testConfig().PubSub
	cfg.Backend = pubsub.BackendNATS
	cfg.NATSURL = "nats://configured:4222"
	cfg.BreakerFailureThreshold = 9

	pc := pubsubConfigFrom(cfg, "")
	if pc.NATSURL != "nats://configured:4222" {
		t.Errorf("NATSURL = %q", pc.NATSURL)
	}
	if pc.Breaker.FailureThreshold != 9 {
		t.Errorf("FailureThreshold = %d, want 9", pc.Breaker.FailureThreshold)
	}

	pc = pubsubConfigFrom(cfg, "nats://127.0.0.1:5555")
	if pc.NATSURL != "nats://127.0.0.1:5555" {
		t.Errorf("embedded URL should override, got %q", pc.NATSURL)
	}
}

func TestInitPubSub_EmbeddedNATS(t *testing.T) {
	cfg := testConfig().PubSub
	cfg.Backend = pubsub.BackendNATS
	cfg.EmbeddedNATS = true
	cfg.EmbeddedPort = -1 // random port

	bridge, embedded, err := initPubSub(cfg, false)
	if err != nil {
		t.Fatalf("initPubSub: %v", err)
	}
	if embedded == nil || !embedded.IsRunning() {
		t.Fatal("embedded server should be running")
	}

	c := &components{bridge: bridge, embedded: embedded}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.close(ctx)
	if embedded.IsRunning() {
		t.Error("embedded server should stop on close")
	}
}

func TestInitPubSub_ExternalNATS(t *testing.T) {
	cfg := testConfig().PubSub
	cfg.Backend = pubsub.BackendNATS
	cfg.NATSURL = testinfra.StartNATS(t)

	bridge, embedded, err := initPubSub(cfg, false)
	if err != nil {
		t.Fatalf("initPubSub: %v", err)
	}
	defer bridge.Close()
	if embedded != nil {
		t.Error("no embedded server expected for an external URL")
	}
}

func TestBuildComponents_ServesHealthAndSockets(t *testing.T) {
	comps, err := buildComponents(testConfig())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	ts := httptest.NewServer(comps.handler)
	defer func() {
		_ = comps.hub.Shutdown(context.Background())
		ts.Close()
		comps.close(context.Background())
	}()

	resp, err := http.Get(ts.URL + "/health/ready")
	if err != nil {
		t.Fatalf("GET /health/ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	data, err := protocol.EncodeClientMessage(&protocol.PingMessage{ID: 1})
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
	if e, ok := msg.(*protocol.ErrorMessage); !ok || e.Message != protocol.ErrMsgUninitialized {
		t.Errorf("reply = %+v, want uninitialized error", msg)
	}
}

func TestBuildComponents_BadSecretReleasesStore(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.CookieSecret = ""
	if _, err := buildComponents(cfg); err == nil {
		t.Fatal("expected an error for an empty cookie secret")
	}
}

func TestComponentsClose_Idempotent(t *testing.T) {
	comps, err := buildComponents(testConfig())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	comps.close(context.Background())
	comps.close(context.Background())
	if comps.db != nil || comps.bridge != nil {
		t.Error("close should release every resource")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig()) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run() = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
