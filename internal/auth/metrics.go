// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CookiesIssued counts cookies minted.
	// Labels:
	//   - kind: "anonymous", "user"
	CookiesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadsync_cookies_issued_total",
			Help: "Total number of cookies issued",
		},
		[]string{"kind"},
	)

	// CookieRejections counts socket cookies that failed verification or lookup.
	// Labels:
	//   - source: "header", "body"
	CookieRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadsync_cookie_rejections_total",
			Help: "Total number of rejected socket cookies",
		},
		[]string{"source"},
	)

	// VersionRejections counts clients turned away for being too old.
	VersionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadsync_client_version_rejections_total",
			Help: "Total number of connections rejected for unsupported client versions",
		},
		[]string{"platform"},
	)
)
