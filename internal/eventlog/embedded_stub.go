// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build !nats

package eventlog

import "context"

// EmbeddedServerConfig mirrors the nats build.
type EmbeddedServerConfig struct {
	Host      string
	Port      int
	StoreDir  string
	MaxMemory int64
	MaxStore  int64
}

// EmbeddedServer is unavailable without -tags nats.
type EmbeddedServer struct{}

// NewEmbeddedServer always fails without -tags nats.
func NewEmbeddedServer(EmbeddedServerConfig) (*EmbeddedServer, error) {
	return nil, ErrNATSNotEnabled
}

func (s *EmbeddedServer) ClientURL() string { return "" }

func (s *EmbeddedServer) Shutdown(context.Context) error { return nil }

func (s *EmbeddedServer) IsRunning() bool { return false }
