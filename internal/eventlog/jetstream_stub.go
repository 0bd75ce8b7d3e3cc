// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build !nats

package eventlog

import "time"

// JetStreamConfig mirrors the nats build so callers compile either way.
type JetStreamConfig struct {
	URL           string
	AckWait       time.Duration
	MaxDeliver    int
	DefaultMaxLen int64
}

// NewJetStreamClient always fails without -tags nats.
func NewJetStreamClient(JetStreamConfig) (Client, error) {
	return nil, ErrNATSNotEnabled
}
