// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package responses

import (
	"context"
	"strings"

	"github.com/tomtom215/threadsync/internal/auth"
	"github.com/tomtom215/threadsync/internal/logging"
	"github.com/tomtom215/threadsync/internal/metrics"
	"github.com/tomtom215/threadsync/internal/protocol"
)

// Reporter receives client-detected inconsistencies and failed state checks.
type Reporter interface {
	ReportInconsistency(ctx context.Context, viewer *auth.Viewer, report *protocol.InconsistencyResponse)
	ReportMismatch(ctx context.Context, viewer *auth.Viewer, invalidKeys []string)
}

// LogReporter writes reports to the log and counts them.
type LogReporter struct {
	security *logging.SecurityLogger
}

// NewLogReporter creates a LogReporter.
func NewLogReporter() *LogReporter {
	return &LogReporter{security: logging.NewSecurityLogger()}
}

// ReportInconsistency implements Reporter.
func (r *LogReporter) ReportInconsistency(ctx context.Context, viewer *auth.Viewer, report *protocol.InconsistencyResponse) {
	kind := "entry"
	if report.Kind == protocol.ResponseThreadInconsistency {
		kind = "thread"
	}
	metrics.InconsistencyReports.WithLabelValues(kind).Inc()
	logging.Ctx(ctx).Warn().
		Str("kind", kind).
		Str("user_id", viewer.UserID).
		Str("session_id", logging.SanitizeSessionID(viewer.SessionID)).
		Int64("client_time", report.Time).
		Str("last_actions", strings.Join(report.LastActions, ",")).
		Int("action_bytes", len(report.Action)).
		Msg("client reported inconsistency")
}

// ReportMismatch implements Reporter.
func (r *LogReporter) ReportMismatch(_ context.Context, viewer *auth.Viewer, invalidKeys []string) {
	r.security.LogStateMismatch(viewer.UserID, viewer.SessionID, invalidKeys)
}
