// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
Package reconciler finishes voice records whose provider status lags.

The provider's voice status is eventually consistent: a clone can be usable
well before its preview URL appears. The reconciler polls every voice id on
the work queue and decides, per record, in this order:

 1. Records no longer pending or processing are dequeued.
 2. A preview URL from the provider completes the record.
 3. Past the maximum age, a record whose trigger was already sent is
    completed without a preview; otherwise it fails.
 4. A record whose trigger was sent keeps waiting.
 5. Otherwise the trigger is sent and, on success, flagged on the queue.

All record changes of one cycle are committed in a single batch. Events and
dequeues follow the commit. A failure on one record is logged and leaves it
queued for the next cycle.
*/
package reconciler
