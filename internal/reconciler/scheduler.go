// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package reconciler

import (
	"context"
	"math/rand/v2"
	"time"
)

// Scheduler paces reconciliation cycles.
type Scheduler interface {
	// Wait blocks until the next cycle is due or ctx is done.
	Wait(ctx context.Context) error
}

// IntervalScheduler waits a fixed interval plus up to Jitter of random delay.
type IntervalScheduler struct {
	Interval time.Duration
	Jitter   time.Duration
	rand     func() float64
}

// NewIntervalScheduler returns a scheduler using math/rand for jitter.
func NewIntervalScheduler(interval, jitter time.Duration) *IntervalScheduler {
	return &IntervalScheduler{Interval: interval, Jitter: jitter, rand: rand.Float64}
}

// Delay returns the wait before the next cycle.
func (s *IntervalScheduler) Delay() time.Duration {
	d := s.Interval
	if s.Jitter > 0 && s.rand != nil {
		d += time.Duration(s.rand() * float64(s.Jitter))
	}
	return d
}

func (s *IntervalScheduler) Wait(ctx context.Context) error {
	t := time.NewTimer(s.Delay())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ManualScheduler runs a cycle each time Tick is called.
type ManualScheduler struct {
	ticks chan struct{}
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{ticks: make(chan struct{})}
}

// Tick releases one Wait. It blocks until a waiter takes it.
func (s *ManualScheduler) Tick(ctx context.Context) error {
	select {
	case s.ticks <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ManualScheduler) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ticks:
		return nil
	}
}
