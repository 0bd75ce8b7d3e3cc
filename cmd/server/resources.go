// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/eventlog"
	"github.com/tomtom215/mediaforge/internal/logging"
)

// resources are the connections shared by every role.
type resources struct {
	rdb      redis.UniversalClient
	log      eventlog.Client
	embedded *eventlog.EmbeddedServer

	mu      sync.Mutex
	closers []func()
	once    sync.Once
}

func (r *resources) onClose(f func()) {
	r.mu.Lock()
	r.closers = append(r.closers, f)
	r.mu.Unlock()
}

// Close releases resources in reverse order of acquisition.
func (r *resources) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i := len(r.closers) - 1; i >= 0; i-- {
			r.closers[i]()
		}
	})
}

// redisClient connects lazily so processes that use neither a Redis log
// nor a Redis queue never dial it.
func (r *resources) redisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rdb != nil {
		return r.rdb, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	r.rdb = rdb
	r.closers = append(r.closers, func() {
		if err := rdb.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing redis client")
		}
	})
	logging.Info().Str("addr", cfg.Addr).Msg("Connected to redis")
	return rdb, nil
}

func openResources(ctx context.Context, cfg *config.Config) (*resources, error) {
	res := &resources{}
	client, err := openEventLog(ctx, cfg, res)
	if err != nil {
		res.Close()
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		res.Close()
		return nil, fmt.Errorf("event log unreachable: %w", err)
	}
	res.log = client
	return res, nil
}

func openEventLog(ctx context.Context, cfg *config.Config, res *resources) (eventlog.Client, error) {
	switch cfg.EventLog.Backend {
	case "redis":
		rdb, err := res.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		// Closing the redis client is registered by redisClient.
		return eventlog.NewRedisClient(rdb), nil

	case "nats":
		url := cfg.NATS.URL
		if cfg.NATS.Embedded {
			srv, err := eventlog.NewEmbeddedServer(eventlog.EmbeddedServerConfig{
				Host:      cfg.NATS.Host,
				Port:      cfg.NATS.Port,
				StoreDir:  cfg.NATS.StoreDir,
				MaxMemory: cfg.NATS.MaxMemory,
				MaxStore:  cfg.NATS.MaxStore,
			})
			if err != nil {
				return nil, fmt.Errorf("start embedded NATS: %w", err)
			}
			res.embedded = srv
			res.onClose(func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Warn().Err(err).Msg("Error stopping embedded NATS")
				}
			})
			url = srv.ClientURL()
			logging.Info().Str("url", url).Msg("Embedded NATS server started")
		}
		js, err := eventlog.NewJetStreamClient(eventlog.JetStreamConfig{
			URL:           url,
			AckWait:       cfg.Worker.ReclaimIdle,
			MaxDeliver:    int(cfg.Worker.MaxDeliveries),
			DefaultMaxLen: cfg.EventLog.MaxLen,
		})
		if err != nil {
			return nil, fmt.Errorf("connect JetStream: %w", err)
		}
		res.onClose(func() { closeLog(js) })
		return js, nil

	default:
		logging.Warn().Msg("Using the in-memory event log; events do not survive a restart")
		c := eventlog.NewMemoryClient()
		res.onClose(func() { closeLog(c) })
		return c, nil
	}
}

func closeLog(c eventlog.Client) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing event log")
	}
}
