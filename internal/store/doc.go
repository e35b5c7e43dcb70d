// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package store owns the BadgerDB instance shared by every persistent component.

Sessions, cookies, the update log, the message log, thread/entry/user snapshots
and activity rows all live in one database, separated by key prefix. The
package provides JSON value helpers, ordered prefix scans and a supervised
value-log garbage collection service.

Key layout:

	session:<id>                        session record
	session_user:<user>:<id>            user -> session index
	cookie:<id>                         cookie record
	update:<user>:<time>:<id>           update log (time zero-padded to 20 digits)
	message:<thread>:<time>:<id>        message log
	message_id:<id>                     message id -> log key
	thread:<id>, entry:<id>, user:<id>  snapshots
	member:<user>:<thread>              membership index
	focus:<user>:<session>:<thread>     focused-thread activity rows

Because times are zero-padded, lexicographic key order equals time order,
which is what the "since watermark" scans rely on.
*/
package store
