// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediaforge/internal/logging"
)

// GarbageCollector is satisfied by *workqueue.BadgerQueue.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// QueueGCService runs value-log GC on an interval.
type QueueGCService struct {
	gc       GarbageCollector
	interval time.Duration
	ratio    float64
	log      zerolog.Logger
}

// NewQueueGCService creates the service. Non-positive arguments take
// 10 minutes and 0.5.
func NewQueueGCService(gc GarbageCollector, interval time.Duration, ratio float64) *QueueGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &QueueGCService{
		gc:       gc,
		interval: interval,
		ratio:    ratio,
		log:      logging.WithComponent("queue-gc"),
	}
}

// Serve runs GC until ctx is cancelled. GC errors are logged.
func (s *QueueGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.gc.RunGC(s.ratio); err != nil {
				s.log.Warn().Err(err).Msg("Queue GC failed")
				continue
			}
			s.log.Debug().Dur("duration", time.Since(start)).Msg("Queue GC finished")
		}
	}
}

func (s *QueueGCService) String() string {
	return "queue-gc"
}
