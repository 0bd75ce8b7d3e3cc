// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package workqueue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueClosed is returned by operations on a closed queue.
	ErrQueueClosed = errors.New("work queue is closed")

	// ErrEmptyID is returned when an operation is given an empty work id.
	ErrEmptyID = errors.New("work id cannot be empty")
)

// Queue is the durable work queue.
type Queue interface {
	// Enqueue adds id and refreshes the set TTL.
	Enqueue(ctx context.Context, id string) error
	// Dequeue removes id. Removing an absent id is not an error.
	Dequeue(ctx context.Context, id string) error
	// GetAll returns every outstanding id in ascending order.
	GetAll(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)

	MarkTriggered(ctx context.Context, id string) error
	IsTriggered(ctx context.Context, id string) (bool, error)
	ClearTriggered(ctx context.Context, id string) error

	Close() error
}

// Config names the queue and sets its expiries.
type Config struct {
	Name       string
	TTL        time.Duration
	TriggerTTL time.Duration
}

// DefaultConfig returns the voice sync queue settings.
func DefaultConfig() Config {
	return Config{
		Name:       "voice_sync",
		TTL:        24 * time.Hour,
		TriggerTTL: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.TriggerTTL <= 0 {
		c.TriggerTTL = def.TriggerTTL
	}
	return c
}

// PendingKey is the set of outstanding ids.
func (c Config) PendingKey() string {
	return c.Name + ":pending"
}

// TriggeredKey is the flag key for id.
func (c Config) TriggeredKey(id string) string {
	return c.Name + ":triggered:" + id
}
