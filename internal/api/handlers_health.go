// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"net/http"
	"time"
)

// Health statuses reported by the probes.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusDraining = "draining"
)

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	Draining      bool    `json:"draining"`
	StoreOpen     bool    `json:"store_open"`
	PubSubBreaker string  `json:"pubsub_breaker,omitempty"`
	Uptime        float64 `json:"uptime_seconds"`
}

// healthStatus gathers the current state of every dependency.
func (h *Handler) healthStatus() HealthStatus {
	hs := HealthStatus{
		Status:    StatusHealthy,
		StoreOpen: h.db != nil && !h.db.Badger().IsClosed(),
		Uptime:    time.Since(h.startTime).Seconds(),
	}
	if h.server != nil {
		hs.Connections = h.server.Hub().GetClientCount()
		hs.Draining = h.server.Hub().Draining()
	}
	if h.bridge != nil {
		hs.PubSubBreaker = h.bridge.BreakerState()
	}

	switch {
	case hs.Draining:
		hs.Status = StatusDraining
	case !hs.StoreOpen, hs.PubSubBreaker == "open":
		hs.Status = StatusDegraded
	}
	return hs
}

// Health reports dependency state. It always answers 200 so dashboards can
// read the body; use /health/ready for routing decisions.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.healthStatus())
}

// HealthLive answers 200 while the process can serve HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers 200 only when new sockets can be served: the store is
// open, the pub/sub breaker is not open and the hub is not draining.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	hs := h.healthStatus()
	status := http.StatusOK
	if hs.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	NewResponseWriter(w, r).Status(status, hs)
}
