// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package models defines the data structures shared across Threadsync.

These are the values that travel over the sync socket and sit in storage:
threads, calendar entries, users, updates, messages and the calendar query
that scopes what a session is subscribed to. Storage packages persist them,
fetchers hydrate them and the protocol package embeds them in wire messages.

Model Categories:

 1. Snapshot models:
    - Thread / ThreadInfo: a thread and its viewer-relative projection
    - EntryInfo: a calendar entry
    - User / UserInfo / CurrentUserInfo

 2. Log models:
    - RawUpdate / UpdateInfo: per-user state change facts, raw and hydrated
    - RawMessageInfo: chat messages scoped to a thread
    - UpdatesResult / MessagesResult: fetch results carrying watermarks

 3. Session scope:
    - CalendarQuery and CalendarFilter, with CompareCalendarQueries for the
    delta between two queries
    - PlatformDetails, ActivityUpdate

All timestamps are Unix milliseconds.
*/
package models
