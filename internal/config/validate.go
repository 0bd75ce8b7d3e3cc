// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/mediaforge/internal/validation"
)

// Validate applies struct-tag rules and then cross-field rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateReconciler(); err != nil {
		return err
	}
	if err := c.validateEventLog(); err != nil {
		return err
	}
	_, err := c.KeyPool.Pairs()
	return err
}

func (c *Config) validateBus() error {
	if !c.HasRole(RoleWorker) {
		return nil
	}
	// video.requested handlers run for up to the poll timeout.
	if c.Bus.ReclaimIdle <= c.Video.PollTimeout {
		return fmt.Errorf("bus.reclaim_idle (%s) must exceed video.poll_timeout (%s)",
			c.Bus.ReclaimIdle, c.Video.PollTimeout)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if !c.HasRole(RoleWorker) {
		return nil
	}
	// A reclaimed message must not still be running on its original consumer.
	if c.Worker.ReclaimIdle <= c.Worker.TaskTimeout {
		return fmt.Errorf("worker.reclaim_idle (%s) must exceed worker.task_timeout (%s)",
			c.Worker.ReclaimIdle, c.Worker.TaskTimeout)
	}
	if c.Worker.DrainTimeout+c.Worker.CancelGrace >= c.Supervisor.ShutdownTimeout {
		return fmt.Errorf("worker.drain_timeout (%s) plus worker.cancel_grace (%s) must be shorter than supervisor.shutdown_timeout (%s)",
			c.Worker.DrainTimeout, c.Worker.CancelGrace, c.Supervisor.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateReconciler() error {
	if !c.HasRole(RoleReconciler) {
		return nil
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the reconciler role")
	}
	if c.Voice.BaseURL == "" || c.Voice.APIKey == "" {
		return errors.New("voice.base_url and voice.api_key are required for the reconciler role")
	}
	if c.Queue.Backend == "badger" && c.Queue.BadgerPath == "" {
		return errors.New("queue.badger_path is required for the badger queue backend")
	}
	if c.Reconciler.Jitter >= c.Reconciler.Interval {
		return fmt.Errorf("reconciler.jitter (%s) must be shorter than reconciler.interval (%s)",
			c.Reconciler.Jitter, c.Reconciler.Interval)
	}
	return nil
}

func (c *Config) validateEventLog() error {
	if c.EventLog.Backend == "nats" && !c.NATS.Embedded && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.embedded is false")
	}
	return nil
}
