// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package logging provides the zerolog-based logger used throughout Threadsync.
//
// A global logger is configured once with Init and reached through the
// level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("addr", addr).Msg("server listening")
//	logging.Err(err).Msg("commit failed")
//
// Sockets log through WithConnection so every line carries conn_id, user_id
// and session_id. HTTP handlers use Ctx(ctx) to pick up the request ID.
// Third-party libraries that expect other logger interfaces are bridged:
// NewSlogLogger for suture's event hook and NewWatermillLogger for the
// pub/sub backends.
//
// Always terminate event chains with Msg or Send, otherwise nothing is written.
package logging
