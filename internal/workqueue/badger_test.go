// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package workqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerQueue(t *testing.T, cfg Config) *BadgerQueue {
	t.Helper()
	q, err := OpenBadger(BadgerConfig{InMemory: true}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestBadgerQueueConformance(t *testing.T) {
	runQueueConformance(t, func(t *testing.T, cfg Config) Queue {
		return newBadgerQueue(t, cfg)
	})
}

func TestBadgerQueueIsolatesNames(t *testing.T) {
	ctx := context.Background()
	q, err := OpenBadger(BadgerConfig{InMemory: true}, Config{Name: "voice_sync"})
	require.NoError(t, err)
	defer q.Close()

	// A second queue sharing the same database under another name.
	other := &BadgerQueue{db: q.db, cfg: Config{Name: "voice_sync_extra"}.withDefaults()}

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, other.Enqueue(ctx, "b"))

	ids, err := q.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestBadgerTriggerFlagExpires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a one second TTL")
	}
	ctx := context.Background()
	q := newBadgerQueue(t, Config{Name: "ttl", TriggerTTL: time.Second})

	require.NoError(t, q.MarkTriggered(ctx, "v-1"))
	triggered, err := q.IsTriggered(ctx, "v-1")
	require.NoError(t, err)
	require.True(t, triggered)

	require.Eventually(t, func() bool {
		triggered, err := q.IsTriggered(ctx, "v-1")
		return err == nil && !triggered
	}, 5*time.Second, 100*time.Millisecond)
}

func TestBadgerSetExpiresAsUnit(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a short TTL")
	}
	ctx := context.Background()
	q := newBadgerQueue(t, Config{Name: "unit", TTL: 2 * time.Second})

	require.NoError(t, q.Enqueue(ctx, "old"))
	time.Sleep(1500 * time.Millisecond)
	// Enqueueing refreshes the expiry of members already present.
	require.NoError(t, q.Enqueue(ctx, "new"))
	time.Sleep(1000 * time.Millisecond)

	ids, err := q.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	require.Eventually(t, func() bool {
		n, err := q.Count(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 100*time.Millisecond)
}

func TestBadgerEnqueueDoesNotResurrectConcurrentDequeue(t *testing.T) {
	ctx := context.Background()
	q := newBadgerQueue(t, Config{})
	require.NoError(t, q.Enqueue(ctx, "a"))

	var once sync.Once
	q.afterScan = func() {
		once.Do(func() { require.NoError(t, q.Dequeue(ctx, "a")) })
	}
	require.NoError(t, q.Enqueue(ctx, "b"))

	ids, err := q.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestBadgerRunGCInMemory(t *testing.T) {
	q := newBadgerQueue(t, Config{})
	require.NoError(t, q.RunGC(0.5))
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.RunGC(0.5), ErrQueueClosed)
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{}, Config{})
	require.Error(t, err)
}

func TestOpenBadgerOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true}, Config{})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, "persisted"))
	require.NoError(t, q.Close())

	q, err = OpenBadger(BadgerConfig{Path: dir}, Config{})
	require.NoError(t, err)
	defer q.Close()
	ids, err := q.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, ids)
}
