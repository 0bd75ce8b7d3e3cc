// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package workqueue tracks outstanding units of external work.
//
// A Queue is a set of work ids with bounded staleness: the whole set
// expires if nothing is enqueued for the configured TTL. Alongside the set,
// each id can carry a trigger-processed flag with its own TTL that records a
// one-time side effect already attempted for that id.
//
// Two backends are provided:
//
//   - RedisQueue: one set key plus one flag key per id, the layout shared
//     with other producers on the same Redis.
//   - BadgerQueue: an embedded store for single-node deployments, where
//     the set TTL is emulated by refreshing every member's expiry.
package workqueue
