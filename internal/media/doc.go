// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package media re-encodes user uploads into the formats served to clients.
//
// Images of any supported input format are flattened onto an opaque white
// canvas and encoded as JPEG. Videos are re-encoded to H.264 with ffmpeg,
// trying a hardware encoder first and falling back to libx264.
package media
