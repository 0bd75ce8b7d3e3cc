// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package eventlog is the narrow client interface Mediaforge uses to talk
// to a durable append-only log with consumer groups.
//
// The Client interface covers exactly what the event bus and the worker
// pool need: append with bounded length, idempotent group creation, group
// reads, acknowledgement, pending inspection and claiming.
//
// # Backends
//
//   - RedisClient: Redis Streams through go-redis (XADD, XREADGROUP, XACK,
//     XPENDING, XCLAIM). This is the production backend.
//   - JetStreamClient: NATS JetStream pull consumers (build with -tags nats).
//     JetStream redelivers unacknowledged messages itself once AckWait
//     expires, so Pending and Claim report nothing and the reclaim loop
//     becomes a no-op.
//   - MemoryClient: in-process implementation with Redis Streams semantics
//     and an injectable clock, used by tests and single-process development.
//
// # Delivery semantics
//
// Delivery is at-least-once. A message read through ReadGroup stays pending
// for the reading consumer until Ack. Ack is idempotent. A pending message
// whose idle time exceeds a threshold may be claimed by another consumer,
// which resets its idle time and increments its delivery count.
package eventlog
