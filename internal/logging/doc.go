// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package logging provides the process-wide zerolog logger for Mediaforge.
//
// Every component logs through this package so that the event bus, the
// worker pool, the reconciler and the provider clients share one output
// format and one level setting.
//
// # Usage
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("stream", stream).Msg("Consumer group ready")
//	logging.Err(err).Str("voice_id", id).Msg("Reconcile failed")
//
//	// Loggers carried through context
//	ctx = logging.ContextWithFields(ctx, map[string]string{"message_id": id})
//	logging.Ctx(ctx).Debug().Msg("Dispatching task")
//
// # Suture integration
//
// NewSlogLogger returns a log/slog logger backed by zerolog, which is what
// sutureslog expects for supervisor event hooks.
//
// # Secrets
//
// Credential material must never reach the log. Use MaskKey for access keys;
// secret keys and signed tokens are not logged at all.
package logging
