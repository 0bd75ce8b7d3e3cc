// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package keypool rotates API credentials for a rate-limited provider.
//
// A Manager holds credential pairs loaded at startup. Current selects the
// next pair that is not cooling down, round-robin from a movable pointer.
// MarkFailed puts the current pair on cooldown and advances the pointer.
// When every pair is cooling down the first pair is returned anyway.
//
// Classify maps provider errors to one of three classes:
//
//	ClassRateLimited  HTTP 429 with a provider code in RateLimitCodes
//	ClassCredential   HTTP 401, or CodeCredentialDisabled at any status
//	ClassFatal        everything else
//
// Do runs a call with retries across credentials, bounded by the pool size.
package keypool
