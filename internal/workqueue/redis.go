// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package workqueue

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/mediaforge/internal/metrics"
)

// RedisQueue stores the set and flags in Redis.
type RedisQueue struct {
	rdb    redis.UniversalClient
	cfg    Config
	closed atomic.Bool
}

// NewRedisQueue wraps rdb. Close does not close rdb; the caller owns it.
func NewRedisQueue(rdb redis.UniversalClient, cfg Config) *RedisQueue {
	return &RedisQueue{rdb: rdb, cfg: cfg.withDefaults()}
}

func (q *RedisQueue) check(id string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if id == "" {
		return ErrEmptyID
	}
	return nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	key := q.cfg.PendingKey()
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, id)
		pipe.Expire(ctx, key, q.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	if err := q.rdb.SRem(ctx, q.cfg.PendingKey(), id).Err(); err != nil {
		return fmt.Errorf("dequeue %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) GetAll(ctx context.Context) ([]string, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	ids, err := q.rdb.SMembers(ctx, q.cfg.PendingKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (q *RedisQueue) Count(ctx context.Context) (int64, error) {
	if q.closed.Load() {
		return 0, ErrQueueClosed
	}
	n, err := q.rdb.SCard(ctx, q.cfg.PendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	metrics.SetQueueDepth(q.cfg.Name, n)
	return n, nil
}

func (q *RedisQueue) MarkTriggered(ctx context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	if err := q.rdb.Set(ctx, q.cfg.TriggeredKey(id), "1", q.cfg.TriggerTTL).Err(); err != nil {
		return fmt.Errorf("mark triggered %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) IsTriggered(ctx context.Context, id string) (bool, error) {
	if err := q.check(id); err != nil {
		return false, err
	}
	n, err := q.rdb.Exists(ctx, q.cfg.TriggeredKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check triggered %s: %w", id, err)
	}
	return n > 0, nil
}

func (q *RedisQueue) ClearTriggered(ctx context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	if err := q.rdb.Del(ctx, q.cfg.TriggeredKey(id)).Err(); err != nil {
		return fmt.Errorf("clear triggered %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
