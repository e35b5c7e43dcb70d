// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package validation wraps go-playground/validator with a shared instance.
//
// The socket protocol decodes every client frame into a typed struct and then
// calls ValidateStruct; a failure becomes a schema-violation error reported
// against the frame's request id. Configuration uses the same validator for
// enum-like fields.
package validation
