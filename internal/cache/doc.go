// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package cache provides a small typed TTL cache.
//
// Expired entries are dropped lazily on read and in bulk by Purge, so the
// cache owns no goroutines. The video provider keeps one signed auth token
// per credential here and deletes it when the credential is rotated out.
package cache
