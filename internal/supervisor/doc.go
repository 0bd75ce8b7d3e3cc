// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package supervisor runs the long-lived services of a mediaforge process
under a suture v4 tree.

	RootSupervisor ("mediaforge")
	├── DataSupervisor ("data-layer")
	│   └── QueueGCService (badger queue backend only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── event bus
	│   └── media worker pool (role: worker)
	├── ProcessingSupervisor ("processing-layer")
	│   └── voice reconciler (role: reconciler)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (ops endpoints)

Each layer counts failures on its own, so a reconciler that keeps failing
against an unreachable provider does not take down the worker or the ops
endpoints. Services implement suture.Service: Serve blocks until its
context is cancelled and returns an error to request a restart.

Restart events are logged through sutureslog into the zerolog logger.
*/
package supervisor
