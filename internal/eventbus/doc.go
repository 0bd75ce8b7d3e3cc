// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package eventbus publishes and consumes typed domain events over an
// eventlog.Client.
//
// Each event type has its own stream named StreamPrefix + type, for example
// "events:voice.completed". Entries carry two fields: "event", the JSON
// encoded Event, and "type", the event type for cheap filtering.
//
// # Consuming
//
// Handlers are registered per type with Subscribe before Start. The receive
// loop reads every subscribed stream with a short block timeout, runs all
// handlers for an event in registration order and then acknowledges it. A
// failing handler is logged and counted but does not prevent the ack, so
// handlers must be idempotent and must not rely on redelivery for retries.
// Work that needs retry semantics belongs on the worker pool.
//
// Stop cancels the loop and waits for it, so no handler runs after Stop
// returns.
package eventbus
