// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

// Package testinfra provides shared test infrastructure: in-memory stores,
// a seeded fixture world, and in-process brokers for bridge tests.
//
// Everything runs inside the test process. There are no containers and no
// network dependencies beyond loopback, so tests run the same in CI and on a
// laptop.
//
//	func TestSomething(t *testing.T) {
//	    db := testinfra.OpenStore(t)
//	    repo := state.NewRepository(db)
//	    world := testinfra.SeedWorld(t, repo)
//	    ...
//	}
//
// # Brokers
//
// StartNATS runs an embedded nats-server on a random port and StartRedis runs
// miniredis. Both are torn down through t.Cleanup.
package testinfra
