// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package responses handles the clientResponses clients attach to INITIAL and
RESPONSES messages, and drives the consistency check.

Process persists what clients report about themselves (platform, platform
details, device token), relays inconsistency reports, applies initial
activity updates, works out which facts the server still needs to request,
and derives a state check status.

CheckState turns a status into the next step of the consistency check:

	state_check      hashes of the four collections
	state_invalid    authoritative copies of what mismatched, plus
	                 per-record hashes for collections that mismatched
	state_validated  a session update stamping LastValidated

Hashes are the hex xxhash64 of the canonical JSON encoding (object keys
sorted) of the value a client holds for that key.
*/
package responses
