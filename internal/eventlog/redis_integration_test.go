// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build integration

package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediaforge/internal/testinfra"
)

func TestRedisClientConformance(t *testing.T) {
	ctx := context.Background()
	container := testinfra.NewRedisContainer(ctx, t)

	db := 0
	runClientConformance(t, clientHarness{
		newClient: func(t *testing.T) Client {
			// Each subtest gets its own logical database so stream names do not collide.
			db++
			rdb := redis.NewClient(&redis.Options{Addr: container.Addr, DB: db % 16})
			require.NoError(t, rdb.FlushDB(ctx).Err())
			c := NewRedisClient(rdb)
			t.Cleanup(func() { _ = c.Close() })
			return c
		},
		waitIdle: time.Sleep,
	})
}

func TestRedisClientApproximateTrim(t *testing.T) {
	ctx := context.Background()
	container := testinfra.NewRedisContainer(ctx, t)
	rdb := redis.NewClient(&redis.Options{Addr: container.Addr})
	c := NewRedisClient(rdb)
	defer c.Close()

	stream := "events:test.trim"
	for i := 0; i < 1000; i++ {
		_, err := c.Add(ctx, stream, map[string]string{"i": "x"}, 100)
		require.NoError(t, err)
	}
	n, err := rdb.XLen(ctx, stream).Result()
	require.NoError(t, err)
	// MAXLEN ~ trims whole radix nodes, so the length lands near but not below the cap.
	assert.GreaterOrEqual(t, n, int64(100))
	assert.Less(t, n, int64(1000))
}
