// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package api

import (
	"fmt"
	"strings"
)

// maxLoggedValueLength bounds client-controlled strings written to logs.
const maxLoggedValueLength = 256

// sanitizeLogValue makes an Origin or remote address safe to log: control
// bytes are hex-escaped and overlong values are cut.
func sanitizeLogValue(s string) string {
	if len(s) > maxLoggedValueLength {
		s = s[:maxLoggedValueLength] + "..."
	}
	if strings.IndexFunc(s, isControl) < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if isControl(r) {
			fmt.Fprintf(&b, `\x%02x`, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7F
}
