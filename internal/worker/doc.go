// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package worker runs media optimization tasks from the event log.

A Pool is one consumer in the worker consumer group. It moves through
STARTING, RUNNING, DRAINING and STOPPED:

  - Start pings the log, creates the consumer group and launches the consume
    loop, the reclaim loop and the metrics reporter.
  - The consume loop reads media.optimize messages and hands each one to a
    detached task. Every task type has its own permit pool, so a backlog of
    video transcodes cannot hold up image conversions.
  - Handlers return an explicit Result. Ack acknowledges the message. Retry
    leaves it pending so the reclaim loop retries it once it has been idle
    for ReclaimIdle. Fatal acknowledges it and publishes media.dead_letter.
  - A message claimed more than MaxDeliveries times is dead-lettered.
  - Stop stops reading, waits up to DrainTimeout for running tasks, cancels
    what is left and waits for it to unwind.

Tasks that panic are treated as Retry.
*/
package worker
