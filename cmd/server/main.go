// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/health"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/supervisor"
	"github.com/tomtom215/mediaforge/internal/supervisor/services"
	"github.com/tomtom215/mediaforge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Strs("roles", cfg.Roles).
		Str("eventlog", cfg.EventLog.Backend).
		Str("queue", cfg.Queue.Backend).
		Msg("Starting mediaforge")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only resource initialization failures are fatal.
	res, err := openResources(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize resources")
	}
	defer res.Close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})

	checker := health.NewChecker(5 * time.Second)
	checker.Register("eventlog", health.PingCheck(res.log))

	bus := eventbus.New(res.log, busConfig(cfg))

	var pool *worker.Pool
	if cfg.HasRole(config.RoleWorker) {
		pool, err = setupWorker(cfg, res, bus, tree, checker)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to set up worker role")
		}
	}
	if cfg.HasRole(config.RoleReconciler) {
		if err := setupReconciler(cfg, res, bus, tree, checker); err != nil {
			logging.Fatal().Err(err).Msg("Failed to set up reconciler role")
		}
	}

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: worker.NewRouter(checker, pool, worker.RouterConfig{
			RateLimit: cfg.Server.RateLimit,
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Ops HTTP server added")

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	logging.Info().Msg("Mediaforge stopped")
	if len(unstopped) > 0 {
		res.Close()
		os.Exit(1)
	}
}

func busConfig(cfg *config.Config) eventbus.Config {
	return eventbus.Config{
		StreamPrefix:    cfg.EventLog.StreamPrefix,
		MaxLen:          cfg.EventLog.MaxLen,
		Group:           cfg.Bus.Group,
		Source:          cfg.Bus.Source,
		BatchSize:       cfg.Bus.BatchSize,
		BlockTimeout:    cfg.Bus.BlockTimeout,
		ReclaimIdle:     cfg.Bus.ReclaimIdle,
		ReclaimInterval: cfg.Bus.ReclaimInterval,
	}
}
