// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/health"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/provider/voice"
	"github.com/tomtom215/mediaforge/internal/reconciler"
	"github.com/tomtom215/mediaforge/internal/store"
	"github.com/tomtom215/mediaforge/internal/supervisor"
	"github.com/tomtom215/mediaforge/internal/supervisor/services"
	"github.com/tomtom215/mediaforge/internal/workqueue"
)

func setupReconciler(cfg *config.Config, res *resources, bus *eventbus.Bus, tree *supervisor.Tree, checker *health.Checker) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	queue, err := openQueue(ctx, cfg, res, tree)
	if err != nil {
		return err
	}

	records, err := store.NewPostgresStore(ctx, store.PostgresConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	res.onClose(records.Close)
	if err := records.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	checker.Register("postgres", health.PingCheck(records))

	provider := voice.New(voice.Config{
		BaseURL: cfg.Voice.BaseURL,
		APIKey:  cfg.Voice.APIKey,
		Timeout: cfg.Voice.Timeout,
	}, nil)

	rec := reconciler.New(queue, records, provider, bus, reconciler.Config{
		Interval: cfg.Reconciler.Interval,
		Jitter:   cfg.Reconciler.Jitter,
		MaxAge:   cfg.Reconciler.MaxAge,
	})
	tree.AddProcessingService(rec)
	logging.Info().
		Dur("interval", cfg.Reconciler.Interval).
		Dur("max_age", cfg.Reconciler.MaxAge).
		Str("queue", cfg.Queue.Backend).
		Msg("Voice reconciler added")
	return nil
}

func openQueue(ctx context.Context, cfg *config.Config, res *resources, tree *supervisor.Tree) (workqueue.Queue, error) {
	qcfg := workqueue.Config{
		Name:       cfg.Queue.Name,
		TTL:        cfg.Queue.TTL,
		TriggerTTL: cfg.Queue.TriggerTTL,
	}

	if cfg.Queue.Backend == "badger" {
		q, err := workqueue.OpenBadger(workqueue.BadgerConfig{Path: cfg.Queue.BadgerPath, SyncWrites: true}, qcfg)
		if err != nil {
			return nil, fmt.Errorf("open badger queue: %w", err)
		}
		res.onClose(func() {
			if err := q.Close(); err != nil {
				logging.Warn().Err(err).Msg("Error closing badger queue")
			}
		})
		tree.AddDataService(services.NewQueueGCService(q, 10*time.Minute, 0.5))
		return q, nil
	}

	rdb, err := res.redisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	q := workqueue.NewRedisQueue(rdb, qcfg)
	res.onClose(func() { _ = q.Close() })
	return q, nil
}
