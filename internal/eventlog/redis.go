// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client on Redis Streams.
type RedisClient struct {
	rdb    redis.UniversalClient
	closed atomic.Bool
}

// NewRedisClient wraps rdb. Close closes rdb.
func NewRedisClient(rdb redis.UniversalClient) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) Add(ctx context.Context, stream string, fields map[string]string, maxLen int64) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

func (c *RedisClient) EnsureGroup(ctx context.Context, stream, group string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}
	return nil
}

func (c *RedisClient) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if len(streams) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(streams)*2)
	keys = append(keys, streams...)
	for range streams {
		keys = append(keys, ">")
	}
	// go-redis treats Block 0 as "forever" and negative as "no BLOCK".
	if block <= 0 {
		block = -1
	}

	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  keys,
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if isNoGroup(err) {
			return nil, fmt.Errorf("xreadgroup %s: %w", group, ErrNoGroup)
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", group, err)
	}

	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, toMessage(s.Stream, m, 1))
		}
	}
	return out, nil
}

func (c *RedisClient) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(ids) == 0 {
		return nil
	}
	// XACK returns the number of entries actually removed from the PEL;
	// zero for repeated acks is fine.
	if err := c.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack %s/%s: %w", stream, group, err)
	}
	return nil
}

func (c *RedisClient) Pending(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	res, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if isNoGroup(err) {
			return nil, fmt.Errorf("xpending %s/%s: %w", stream, group, ErrNoGroup)
		}
		return nil, fmt.Errorf("xpending %s/%s: %w", stream, group, err)
	}
	out := make([]PendingMessage, len(res))
	for i, p := range res {
		out[i] = PendingMessage{
			ID:         p.ID,
			Consumer:   p.Consumer,
			Idle:       p.Idle,
			Deliveries: p.RetryCount,
		}
	}
	return out, nil
}

func (c *RedisClient) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if isNoGroup(err) {
			return nil, fmt.Errorf("xclaim %s/%s: %w", stream, group, ErrNoGroup)
		}
		return nil, fmt.Errorf("xclaim %s/%s: %w", stream, group, err)
	}
	counts, err := c.deliveryCounts(ctx, stream, group, consumer, res)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(res))
	for _, m := range res {
		// Entries trimmed while pending come back without values.
		if len(m.Values) == 0 {
			continue
		}
		out = append(out, toMessage(stream, m, counts[m.ID]))
	}
	return out, nil
}

// deliveryCounts reads the post-claim delivery counter of each claimed entry.
// XCLAIM increments the counter but does not return it.
func (c *RedisClient) deliveryCounts(ctx context.Context, stream, group, consumer string, msgs []redis.XMessage) (map[string]int64, error) {
	counts := make(map[string]int64, len(msgs))
	if len(msgs) == 0 {
		return counts, nil
	}
	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.XPendingExtCmd, 0, len(msgs))
	for _, m := range msgs {
		cmds = append(cmds, pipe.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream:   stream,
			Group:    group,
			Start:    m.ID,
			End:      m.ID,
			Count:    1,
			Consumer: consumer,
		}))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xpending %s/%s after claim: %w", stream, group, err)
	}
	for _, cmd := range cmds {
		entries, err := cmd.Result()
		if err != nil {
			continue
		}
		for _, e := range entries {
			counts[e.ID] = e.RetryCount
		}
	}
	return counts, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rdb.Close()
}

func toMessage(stream string, m redis.XMessage, deliveries int64) Message {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case []byte:
			fields[k] = string(val)
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return Message{Stream: stream, ID: m.ID, Fields: fields, Deliveries: deliveries}
}

func isNoGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "NOGROUP")
}
