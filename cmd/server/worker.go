// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package main

import (
	"fmt"

	"github.com/tomtom215/mediaforge/internal/config"
	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/health"
	"github.com/tomtom215/mediaforge/internal/keypool"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/media"
	"github.com/tomtom215/mediaforge/internal/provider/video"
	"github.com/tomtom215/mediaforge/internal/storage"
	"github.com/tomtom215/mediaforge/internal/supervisor"
	"github.com/tomtom215/mediaforge/internal/worker"
)

func setupWorker(cfg *config.Config, res *resources, bus *eventbus.Bus, tree *supervisor.Tree, checker *health.Checker) (*worker.Pool, error) {
	blobs, err := storage.NewFSStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("open blob storage: %w", err)
	}

	pool := worker.New(res.log, bus, worker.Config{
		Stream:       bus.StreamName(eventbus.MediaOptimize),
		Group:        cfg.Worker.Group,
		BatchSize:    cfg.Worker.BatchSize,
		BlockTimeout: cfg.Worker.BlockTimeout,
		Concurrency: map[string]int64{
			worker.TaskImage: cfg.Worker.ImageConcurrency,
			worker.TaskVideo: cfg.Worker.VideoConcurrency,
		},
		TaskTimeout:     cfg.Worker.TaskTimeout,
		ReclaimInterval: cfg.Worker.ReclaimInterval,
		ReclaimIdle:     cfg.Worker.ReclaimIdle,
		MaxDeliveries:   cfg.Worker.MaxDeliveries,
		MetricsInterval: cfg.Worker.MetricsInterval,
		DrainTimeout:    cfg.Worker.DrainTimeout,
		CancelGrace:     cfg.Worker.CancelGrace,
	})
	pool.Handle(worker.TaskImage, worker.NewImageHandler(blobs, media.NewImageTranscoder(cfg.Media.ImageQuality)))
	pool.Handle(worker.TaskVideo, worker.NewVideoHandler(blobs, media.NewVideoTranscoder(media.VideoConfig{
		FFmpegPath:      cfg.Media.FFmpegPath,
		HardwareEncoder: cfg.Media.HardwareEncoder,
		CRF:             cfg.Media.CRF,
		TempDir:         cfg.Media.TempDir,
	}, media.ExecRunner{})))

	tree.AddMessagingService(pool)
	checker.Register("worker", pool)
	logging.Info().
		Str("consumer", pool.Consumer()).
		Int64("image_concurrency", cfg.Worker.ImageConcurrency).
		Int64("video_concurrency", cfg.Worker.VideoConcurrency).
		Msg("Worker pool added")

	if err := setupVideoGeneration(cfg, bus, tree); err != nil {
		return nil, err
	}
	return pool, nil
}

// setupVideoGeneration subscribes the video provider to video.requested
// when credentials are configured.
func setupVideoGeneration(cfg *config.Config, bus *eventbus.Bus, tree *supervisor.Tree) error {
	pairs, err := cfg.KeyPool.Pairs()
	if err != nil {
		return err
	}
	if cfg.Video.BaseURL == "" || len(pairs) == 0 {
		logging.Info().Msg("Video generation disabled (no video.base_url or keypool.keys)")
		return nil
	}

	kps := make([]keypool.KeyPair, len(pairs))
	for i, p := range pairs {
		kps[i] = keypool.KeyPair{Access: p.Access, Secret: p.Secret}
	}
	keys, err := keypool.NewManager(kps, keypool.WithCooldown(cfg.KeyPool.Cooldown))
	if err != nil {
		return fmt.Errorf("build key pool: %w", err)
	}

	client := video.New(video.Config{
		BaseURL:      cfg.Video.BaseURL,
		Model:        cfg.Video.Model,
		Timeout:      cfg.Video.Timeout,
		PollInterval: cfg.Video.PollInterval,
		PollTimeout:  cfg.Video.PollTimeout,
	}, keys)
	bus.Subscribe(eventbus.VideoRequested, video.HandleRequested(client, bus))
	tree.AddMessagingService(bus)
	logging.Info().Int("credentials", keys.Size()).Msg("Video generation subscribed to video.requested")
	return nil
}
