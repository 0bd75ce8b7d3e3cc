// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package workqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runQueueConformance checks the behaviour every backend shares.
func runQueueConformance(t *testing.T, newQueue func(t *testing.T, cfg Config) Queue) {
	ctx := context.Background()

	t.Run("enqueue is idempotent", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_idem"})
		require.NoError(t, q.Enqueue(ctx, "v-1"))
		require.NoError(t, q.Enqueue(ctx, "v-1"))
		require.NoError(t, q.Enqueue(ctx, "v-2"))

		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ids, err := q.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"v-1", "v-2"}, ids)
	})

	t.Run("dequeue removes and tolerates absent ids", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_deq"})
		require.NoError(t, q.Enqueue(ctx, "a"))
		require.NoError(t, q.Enqueue(ctx, "b"))
		require.NoError(t, q.Dequeue(ctx, "a"))
		require.NoError(t, q.Dequeue(ctx, "missing"))

		ids, err := q.GetAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids)
	})

	t.Run("empty queue", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_empty"})
		ids, err := q.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
		n, err := q.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("trigger flag is independent of membership", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_flag"})
		triggered, err := q.IsTriggered(ctx, "v-1")
		require.NoError(t, err)
		assert.False(t, triggered)

		require.NoError(t, q.MarkTriggered(ctx, "v-1"))
		triggered, err = q.IsTriggered(ctx, "v-1")
		require.NoError(t, err)
		assert.True(t, triggered)

		// Flags survive dequeue; they expire on their own TTL.
		require.NoError(t, q.Enqueue(ctx, "v-1"))
		require.NoError(t, q.Dequeue(ctx, "v-1"))
		triggered, err = q.IsTriggered(ctx, "v-1")
		require.NoError(t, err)
		assert.True(t, triggered)

		require.NoError(t, q.ClearTriggered(ctx, "v-1"))
		require.NoError(t, q.ClearTriggered(ctx, "v-1"))
		triggered, err = q.IsTriggered(ctx, "v-1")
		require.NoError(t, err)
		assert.False(t, triggered)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_empty_id"})
		assert.ErrorIs(t, q.Enqueue(ctx, ""), ErrEmptyID)
		assert.ErrorIs(t, q.MarkTriggered(ctx, ""), ErrEmptyID)
	})

	t.Run("closed queue", func(t *testing.T) {
		q := newQueue(t, Config{Name: "conf_closed"})
		require.NoError(t, q.Close())
		assert.ErrorIs(t, q.Enqueue(ctx, "x"), ErrQueueClosed)
		_, err := q.GetAll(ctx)
		assert.ErrorIs(t, err, ErrQueueClosed)
		require.NoError(t, q.Close())
	})
}

func TestConfigKeys(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "voice_sync:pending", cfg.PendingKey())
	assert.Equal(t, "voice_sync:triggered:abc", cfg.TriggeredKey("abc"))
	assert.Equal(t, DefaultConfig(), cfg)
}
