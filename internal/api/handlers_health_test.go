// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type healthEnvelope struct {
	Success bool         `json:"success"`
	Data    HealthStatus `json:"data"`
}

func getHealth(t *testing.T, env *testEnv, path string) (int, healthEnvelope) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body healthEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestHealth_Healthy(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	for _, path := range []string{"/health", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			code, body := getHealth(t, env, path)
			if code != http.StatusOK {
				t.Errorf("status = %d, want 200", code)
			}
			if body.Data.Status != StatusHealthy {
				t.Errorf("status field = %q, want healthy", body.Data.Status)
			}
			if !body.Data.StoreOpen {
				t.Error("store_open = false")
			}
			if body.Data.PubSubBreaker != "closed" {
				t.Errorf("pubsub_breaker = %q, want closed", body.Data.PubSubBreaker)
			}
		})
	}
}

func TestHealth_Live(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	resp, err := http.Get(env.server.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on health route")
	}
}

func TestHealth_DrainingIsNotReady(t *testing.T) {
	env := newTestEnv(t, openSecurity())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = env.hub.Shutdown(ctx)

	code, body := getHealth(t, env, "/health/ready")
	if code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", code)
	}
	if body.Data.Status != StatusDraining || !body.Data.Draining {
		t.Errorf("body = %+v, want draining", body.Data)
	}

	// The informational endpoint still answers 200.
	if code, _ := getHealth(t, env, "/health"); code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", code)
	}
}

func TestHealth_ClosedStoreIsDegraded(t *testing.T) {
	env := newTestEnv(t, openSecurity())
	if err := env.db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	code, body := getHealth(t, env, "/health/ready")
	if code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", code)
	}
	if body.Data.Status != StatusDegraded || body.Data.StoreOpen {
		t.Errorf("body = %+v, want degraded with store closed", body.Data)
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	resp, err := http.Get(env.server.URL + "/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Post(env.server.URL+"/health/live", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /health/live = %d, want 405", resp.StatusCode)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	// Generate one recorded request first.
	if r, err := http.Get(env.server.URL + "/health/live"); err == nil {
		r.Body.Close()
	}

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "/health/live") {
		t.Error("metrics output does not mention the /health/live route")
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	env := newTestEnv(t, openSecurity())

	resp, err := http.Get(env.server.URL + "/health/live")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
}
