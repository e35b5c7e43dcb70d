// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"github.com/tomtom215/threadsync/internal/models"
	"github.com/tomtom215/threadsync/internal/protocol"
)

// VersionPolicy holds the minimum supported code version per platform.
// Platforms without an entry are always supported.
type VersionPolicy struct {
	MinCodeVersion map[models.Platform]int
}

// Check returns a client_version_unsupported ServerError when details name a
// build older than the platform's minimum. reported takes precedence over the
// details stored on the viewer's cookie; with neither, the client passes.
func (p VersionPolicy) Check(viewer *Viewer, reported *models.PlatformDetails) error {
	details := reported
	if details == nil {
		details = viewer.PlatformDetails
	}
	if details == nil {
		return nil
	}
	minVersion, ok := p.MinCodeVersion[details.Platform]
	if !ok || details.CodeVersion >= minVersion {
		return nil
	}
	VersionRejections.WithLabelValues(string(details.Platform)).Inc()
	d := *details
	return &protocol.ServerError{
		Message:         protocol.ErrMsgClientVersionUnsupported,
		PlatformDetails: &d,
	}
}
