// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package services adapts components whose lifecycle is not already a
blocking Serve(ctx) into suture.Service values.

HTTPServerService wraps *http.Server: ListenAndServe runs in a goroutine and
context cancellation triggers Shutdown with a bounded timeout.

QueueGCService periodically runs value-log garbage collection on the Badger
work queue.

The event bus, the worker pool and the reconciler implement Serve
themselves and are added to the tree directly.
*/
package services
