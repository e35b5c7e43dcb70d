// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

/*
Package supervisor builds the suture v4 process tree for threadsync.

The tree has one root supervisor and three layer supervisors:

	threadsync (root)
	├── data-layer       store value-log GC
	├── messaging-layer  socket hub, embedded NATS watchdog
	└── api-layer        HTTP server

A failing service is restarted by its own layer with exponential backoff,
so a crash in the API layer never restarts the store GC loop. A service may
return suture.ErrTerminateSupervisorTree to stop the whole process.

Suture stops children concurrently. Resources with an ordering constraint
(pub/sub bridge, embedded NATS server, store) are therefore not owned by the
tree; the caller closes them after Serve returns.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(store.NewGCService(db, cfg.Store.GCInterval))
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Addr(), cfg.Server.ShutdownTimeout))

	err = tree.Serve(ctx)

See the services sub-package for the wrappers.
*/
package supervisor
