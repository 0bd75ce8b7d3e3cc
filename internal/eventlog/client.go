// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("event log client closed")

	// ErrNoGroup is returned when reading or claiming on a group that was never created.
	ErrNoGroup = errors.New("consumer group does not exist")

	// ErrNATSNotEnabled is returned by the JetStream constructors in builds without -tags nats.
	ErrNATSNotEnabled = errors.New("NATS event log not enabled (build with -tags nats)")
)

// Message is one log entry delivered to a consumer.
type Message struct {
	Stream string
	ID     string
	Fields map[string]string

	// Deliveries counts how many times the entry has been handed to a
	// consumer, including this one. Zero when the backend does not report it.
	Deliveries int64
}

// PendingMessage is a delivered but unacknowledged entry.
type PendingMessage struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int64
}

// Client is the subset of log operations the bus and worker depend on.
type Client interface {
	// Add appends fields to stream, trimming it to roughly maxLen entries
	// (oldest first). maxLen <= 0 disables trimming.
	Add(ctx context.Context, stream string, fields map[string]string, maxLen int64) (string, error)

	// EnsureGroup creates the stream if needed and the consumer group if it
	// does not exist. A new group starts at the beginning of the stream.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup returns up to count new entries per stream for consumer.
	// It waits up to block for data; block <= 0 returns immediately.
	// An empty result with a nil error means the wait timed out.
	ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges ids. Acknowledging an unknown or already
	// acknowledged id is not an error.
	Ack(ctx context.Context, stream, group string, ids ...string) error

	// Pending lists up to count pending entries idle for at least minIdle.
	Pending(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingMessage, error)

	// Claim transfers ownership of ids that are still idle for at least
	// minIdle to consumer and returns them. Ids that no longer qualify or
	// whose entries were trimmed are skipped.
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// ConsumerName returns a process-unique consumer name: host-pid-xxxxxxxx.
func ConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8])
}
