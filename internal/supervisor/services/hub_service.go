// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package services

import (
	"context"
)

// ContextHub matches *websocket.Hub. RunWithContext blocks until ctx ends
// and then closes every socket with 1001.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the socket hub.
type HubService struct {
	hub ContextHub
}

// NewHubService creates a new hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string {
	return "socket-hub"
}
