// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package responses

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
)

// DefaultSessionCheckFrequency is how long a validated session goes without
// another consistency check.
const DefaultSessionCheckFrequency = 3 * time.Minute

// CookieUpdater persists what a client reports about itself.
type CookieUpdater interface {
	SetPlatform(ctx context.Context, id string, platform models.Platform) error
	SetPlatformDetails(ctx context.Context, id string, details models.PlatformDetails) error
	SetDeviceToken(ctx context.Context, id string, token string) error
}

// ActivityApplier applies focus changes.
type ActivityApplier interface {
	Apply(ctx context.Context, viewer *auth.Viewer, batch []models.ActivityUpdate) (models.ActivityUpdateResult, error)
}

// Result is the outcome of Process.
type Result struct {
	ServerRequests       []protocol.ServerRequest
	ActivityUpdateResult *models.ActivityUpdateResult
	StateCheckStatus     *protocol.StateCheckStatus
}

// Processor handles client responses and consistency checks.
type Processor struct {
	cookies        CookieUpdater
	activity       ActivityApplier
	reporter       Reporter
	snapshots      Snapshots
	checkFrequency time.Duration
	now            func() time.Time
}

// NewProcessor creates a Processor. A non-positive checkFrequency uses
// DefaultSessionCheckFrequency.
func NewProcessor(cookies CookieUpdater, activity ActivityApplier, reporter Reporter, snapshots Snapshots, checkFrequency time.Duration) *Processor {
	if checkFrequency <= 0 {
		checkFrequency = DefaultSessionCheckFrequency
	}
	return &Processor{
		cookies:        cookies,
		activity:       activity,
		reporter:       reporter,
		snapshots:      snapshots,
		checkFrequency: checkFrequency,
		now:            time.Now,
	}
}

// SetClock replaces the time source.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// CheckFrequency returns the interval between consistency checks.
func (p *Processor) CheckFrequency() time.Duration {
	return p.checkFrequency
}

// Process applies clientResponses for viewer. The viewer is updated in place
// with whatever it reported about itself.
func (p *Processor) Process(ctx context.Context, viewer *auth.Viewer, clientResponses []protocol.ClientResponse) (*Result, error) {
	res := &Result{ServerRequests: make([]protocol.ServerRequest, 0)}

	for _, resp := range clientResponses {
		switch r := resp.(type) {
		case *protocol.PlatformResponse:
			if err := p.cookies.SetPlatform(ctx, viewer.CookieID, r.Platform); err != nil {
				return nil, fmt.Errorf("record platform: %w", err)
			}
			viewer.Platform = r.Platform

		case *protocol.DeviceTokenResponse:
			if err := p.cookies.SetDeviceToken(ctx, viewer.CookieID, r.DeviceToken); err != nil {
				return nil, fmt.Errorf("record device token: %w", err)
			}
			viewer.DeviceToken = r.DeviceToken

		case *protocol.PlatformDetailsResponse:
			details := r.PlatformDetails
			if err := p.cookies.SetPlatformDetails(ctx, viewer.CookieID, details); err != nil {
				return nil, fmt.Errorf("record platform details: %w", err)
			}
			viewer.PlatformDetails = &details
			viewer.Platform = details.Platform

		case *protocol.InconsistencyResponse:
			p.reporter.ReportInconsistency(ctx, viewer, r)

		case *protocol.CheckStateResponse:
			res.StateCheckStatus = verdict(r.HashResults)
			metrics.StateCheckResults.WithLabelValues(string(res.StateCheckStatus.Status)).Inc()

		case *protocol.InitialActivityUpdatesResponse:
			result, err := p.activity.Apply(ctx, viewer, r.ActivityUpdates)
			if err != nil {
				return nil, fmt.Errorf("apply initial activity updates: %w", err)
			}
			res.ActivityUpdateResult = &result
		}
	}

	if viewer.Platform == "" {
		res.ServerRequests = append(res.ServerRequests, protocol.PlatformRequest{})
	}
	if viewer.PlatformDetails == nil {
		res.ServerRequests = append(res.ServerRequests, protocol.PlatformDetailsRequest{})
	}
	if viewer.NativeClient() && viewer.DeviceToken == "" {
		res.ServerRequests = append(res.ServerRequests, protocol.DeviceTokenRequest{})
	}

	if res.StateCheckStatus == nil && viewer.HasSessionInfo() {
		since := p.now().UnixMilli() - viewer.SessionInfo.LastValidated
		if since >= p.checkFrequency.Milliseconds() {
			res.StateCheckStatus = &protocol.StateCheckStatus{Status: protocol.StateCheck}
		}
	}
	return res, nil
}

// verdict folds per-key hash results into a status. Keys are reported in
// sorted order.
func verdict(hashResults map[string]bool) *protocol.StateCheckStatus {
	invalid := make([]string, 0)
	for key, ok := range hashResults {
		if !ok {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) == 0 {
		return &protocol.StateCheckStatus{Status: protocol.StateValidated}
	}
	sort.Strings(invalid)
	return &protocol.StateCheckStatus{Status: protocol.StateInvalid, InvalidKeys: invalid}
}
