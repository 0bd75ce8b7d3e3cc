// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Command server runs a mediaforge process.
//
// A process runs one or both roles, selected by ROLES (or roles: in
// config.yaml):
//
//   - worker: consumes media.optimize tasks from the event log, transcodes
//     images and videos, and turns video.requested events into provider
//     jobs when video credentials are configured.
//   - reconciler: drives queued voice clones to a terminal state against
//     the voice provider and the Postgres record store.
//
// Every process serves GET /health, GET /metrics and
// GET /metrics/prometheus on SERVER_PORT.
//
// # Build Tags
//
//	go build ./cmd/server               # redis or memory event log
//	go build -tags nats ./cmd/server    # adds the NATS JetStream event log
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The worker pool stops
// reading, waits up to WORKER_DRAIN_TIMEOUT for running tasks, then cancels
// them; the reconciler finishes its current cycle.
package main
