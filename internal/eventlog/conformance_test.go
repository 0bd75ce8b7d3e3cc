// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientHarness lets the same behavioral checks run against every backend
// that supports pending inspection and claiming.
type clientHarness struct {
	newClient func(t *testing.T) Client
	// waitIdle makes at least d of idle time elapse for pending entries.
	waitIdle func(d time.Duration)
}

func runClientConformance(t *testing.T, h clientHarness) {
	t.Run("EnsureGroupIsIdempotent", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		require.NoError(t, c.EnsureGroup(ctx, "events:test.idem", "g"))
		require.NoError(t, c.EnsureGroup(ctx, "events:test.idem", "g"))
	})

	t.Run("ReadDeliversInOrderOnce", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		stream := "events:test.order"
		require.NoError(t, c.EnsureGroup(ctx, stream, "g"))

		for _, v := range []string{"a", "b", "c"} {
			_, err := c.Add(ctx, stream, map[string]string{"v": v}, 0)
			require.NoError(t, err)
		}

		msgs, err := c.ReadGroup(ctx, "g", "c1", []string{stream}, 10, 100*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "a", msgs[0].Fields["v"])
		assert.Equal(t, "c", msgs[2].Fields["v"])
		assert.Equal(t, stream, msgs[0].Stream)

		again, err := c.ReadGroup(ctx, "g", "c2", []string{stream}, 10, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, again, "a group delivers each entry to one consumer only")
	})

	t.Run("ReadRespectsCount", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		stream := "events:test.count"
		require.NoError(t, c.EnsureGroup(ctx, stream, "g"))
		for i := 0; i < 5; i++ {
			_, err := c.Add(ctx, stream, map[string]string{"i": "x"}, 0)
			require.NoError(t, err)
		}
		msgs, err := c.ReadGroup(ctx, "g", "c1", []string{stream}, 2, 0)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})

	t.Run("AckIsIdempotent", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		stream := "events:test.ack"
		require.NoError(t, c.EnsureGroup(ctx, stream, "g"))
		_, err := c.Add(ctx, stream, map[string]string{"v": "1"}, 0)
		require.NoError(t, err)

		msgs, err := c.ReadGroup(ctx, "g", "c1", []string{stream}, 1, 100*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, msgs, 1)

		require.NoError(t, c.Ack(ctx, stream, "g", msgs[0].ID))
		require.NoError(t, c.Ack(ctx, stream, "g", msgs[0].ID))
		require.NoError(t, c.Ack(ctx, stream, "g", "999999-0"))

		h.waitIdle(20 * time.Millisecond)
		pending, err := c.Pending(ctx, stream, "g", 0, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		claimed, err := c.Claim(ctx, stream, "g", "c2", 0, msgs[0].ID)
		require.NoError(t, err)
		assert.Empty(t, claimed, "an acknowledged entry cannot be redelivered")
	})

	t.Run("ClaimReassignsIdleMessages", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		stream := "events:test.claim"
		require.NoError(t, c.EnsureGroup(ctx, stream, "g"))
		_, err := c.Add(ctx, stream, map[string]string{"v": "lost"}, 0)
		require.NoError(t, err)

		msgs, err := c.ReadGroup(ctx, "g", "dead-consumer", []string{stream}, 1, 100*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, msgs, 1)

		minIdle := 50 * time.Millisecond
		pending, err := c.Pending(ctx, stream, "g", minIdle, 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "entry is not idle long enough yet")

		h.waitIdle(minIdle + 10*time.Millisecond)

		pending, err = c.Pending(ctx, stream, "g", minIdle, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, msgs[0].ID, pending[0].ID)
		assert.Equal(t, "dead-consumer", pending[0].Consumer)
		assert.Equal(t, int64(1), pending[0].Deliveries)

		claimed, err := c.Claim(ctx, stream, "g", "live-consumer", minIdle, pending[0].ID)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "lost", claimed[0].Fields["v"])
		assert.Equal(t, int64(2), claimed[0].Deliveries)

		// Claiming resets idle time, so an immediate second claim finds nothing.
		again, err := c.Claim(ctx, stream, "g", "other", minIdle, pending[0].ID)
		require.NoError(t, err)
		assert.Empty(t, again)

		all, err := c.Pending(ctx, stream, "g", 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "live-consumer", all[0].Consumer)
		assert.Equal(t, int64(2), all[0].Deliveries)

		require.NoError(t, c.Ack(ctx, stream, "g", claimed[0].ID))
	})

	t.Run("ReadWithoutGroupFails", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		_, err := c.Add(ctx, "events:test.nogroup", map[string]string{"v": "1"}, 0)
		require.NoError(t, err)
		_, err = c.ReadGroup(ctx, "missing", "c1", []string{"events:test.nogroup"}, 1, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoGroup), "got %v", err)
	})

	t.Run("ClosedClientRejectsCalls", func(t *testing.T) {
		c := h.newClient(t)
		ctx := context.Background()
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		_, err := c.Add(ctx, "events:test.closed", map[string]string{}, 0)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, c.Ping(ctx), ErrClosed)
	})
}
