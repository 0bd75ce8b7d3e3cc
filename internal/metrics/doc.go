// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package metrics defines the Prometheus collectors for Mediaforge.
//
// Collectors are registered with the default registry through promauto and
// exposed by the ops HTTP server via promhttp. Components call the Record*
// helpers rather than touching collectors directly so label sets stay
// consistent.
//
// Metric families:
//
//   - mediaforge_bus_*: event bus publish and consume
//   - mediaforge_worker_*: media worker pool tasks, reclaim, dead letters
//   - mediaforge_media_*: transcoder output sizes and encoder fallbacks
//   - mediaforge_reconciler_*: voice reconciliation cycles and decisions
//   - mediaforge_keypool_*: credential rotation
//   - mediaforge_provider_*: external API calls
//   - mediaforge_circuit_breaker_*: breaker state
package metrics
