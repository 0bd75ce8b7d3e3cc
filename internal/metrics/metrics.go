// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediaforge"

var (
	// Event bus
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Events appended to the log",
		},
		[]string{"event_type"},
	)

	BusPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_errors_total",
			Help:      "Failed publish attempts",
		},
		[]string{"event_type"},
	)

	BusEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_consumed_total",
			Help:      "Events delivered to local handlers",
		},
		[]string{"event_type"},
	)

	BusHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_handler_errors_total",
			Help:      "Handler invocations that returned an error or panicked",
		},
		[]string{"event_type"},
	)

	BusDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_decode_errors_total",
			Help:      "Messages that could not be decoded into an event",
		},
		[]string{"stream"},
	)

	// Worker pool
	WorkerTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_processed_total",
			Help:      "Tasks that completed and were acknowledged",
		},
		[]string{"task_type"},
	)

	WorkerTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_failed_total",
			Help:      "Tasks that failed, by outcome (retry leaves the message pending, fatal dead-letters it)",
		},
		[]string{"task_type", "outcome"},
	)

	WorkerActiveTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_active_tasks",
			Help:      "Tasks currently running",
		},
		[]string{"task_type"},
	)

	WorkerTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_task_duration_seconds",
			Help:      "Task handler duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"task_type"},
	)

	WorkerMessagesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_messages_reclaimed_total",
			Help:      "Pending messages claimed from idle consumers",
		},
	)

	WorkerDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_dead_lettered_total",
			Help:      "Messages abandoned and acknowledged without success",
		},
		[]string{"reason"},
	)

	WorkerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Worker pool state (0=starting, 1=running, 2=draining, 3=stopped)",
		},
	)

	WorkerPendingMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pending_messages",
			Help:      "Unacknowledged messages in the worker consumer group at the last reclaim scan",
		},
	)

	// Media
	MediaBytesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_input_bytes_total",
			Help:      "Bytes read by the transcoders",
		},
		[]string{"task_type"},
	)

	MediaBytesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_output_bytes_total",
			Help:      "Bytes written by the transcoders",
		},
		[]string{"task_type"},
	)

	MediaEncoderFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_encoder_fallbacks_total",
			Help:      "Video encodes that fell back from the hardware to the software encoder",
		},
	)

	// Work queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Outstanding ids in the durable work queue",
		},
		[]string{"queue"},
	)

	// Reconciler
	ReconcilerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_cycles_total",
			Help:      "Reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	ReconcilerDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_decisions_total",
			Help:      "Per-record reconciliation decisions",
		},
		[]string{"action"},
	)

	ReconcilerRecordErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_record_errors_total",
			Help:      "Records that failed and stay queued for the next cycle",
		},
	)

	ReconcilerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciler_cycle_duration_seconds",
			Help:      "Duration of one reconciliation cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Key pool
	KeyPoolRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keypool_rotations_total",
			Help:      "Credential rotations caused by failures",
		},
		[]string{"reason"},
	)

	KeyPoolForcedSelections = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keypool_forced_selections_total",
			Help:      "Selections made while every credential was cooling down",
		},
	)

	KeyPoolCoolingDown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keypool_cooling_down",
			Help:      "Credentials currently in cooldown",
		},
	)

	// External providers
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "HTTP requests to external providers",
		},
		[]string{"provider", "operation", "status"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "External provider request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordPublish records one publish attempt.
func RecordPublish(eventType string, err error) {
	if err != nil {
		BusPublishErrors.WithLabelValues(eventType).Inc()
		return
	}
	BusEventsPublished.WithLabelValues(eventType).Inc()
}

// RecordConsume records one delivered event and whether any handler failed.
func RecordConsume(eventType string, handlerErrors int) {
	BusEventsConsumed.WithLabelValues(eventType).Inc()
	if handlerErrors > 0 {
		BusHandlerErrors.WithLabelValues(eventType).Add(float64(handlerErrors))
	}
}

func RecordDecodeError(stream string) {
	BusDecodeErrors.WithLabelValues(stream).Inc()
}

// RecordTaskStart marks a task active. Call RecordTaskDone when it ends.
func RecordTaskStart(taskType string) {
	WorkerActiveTasks.WithLabelValues(taskType).Inc()
}

// RecordTaskDone records the outcome of a task: "ack", "retry" or "fatal".
func RecordTaskDone(taskType, outcome string, d time.Duration) {
	WorkerActiveTasks.WithLabelValues(taskType).Dec()
	WorkerTaskDuration.WithLabelValues(taskType).Observe(d.Seconds())
	if outcome == "ack" {
		WorkerTasksProcessed.WithLabelValues(taskType).Inc()
		return
	}
	WorkerTasksFailed.WithLabelValues(taskType, outcome).Inc()
}

func RecordReclaimed(n int) {
	WorkerMessagesReclaimed.Add(float64(n))
}

func RecordDeadLetter(reason string) {
	WorkerDeadLettered.WithLabelValues(reason).Inc()
}

// SetWorkerState publishes the numeric state of the worker pool.
func SetWorkerState(state int) {
	WorkerState.Set(float64(state))
}

// RecordMediaSizes records input and output sizes of one transcode.
func RecordMediaSizes(taskType string, in, out int) {
	MediaBytesIn.WithLabelValues(taskType).Add(float64(in))
	MediaBytesOut.WithLabelValues(taskType).Add(float64(out))
}

func RecordEncoderFallback() {
	MediaEncoderFallbacks.Inc()
}

func SetQueueDepth(queue string, n int64) {
	QueueDepth.WithLabelValues(queue).Set(float64(n))
}

// RecordReconcileCycle records a cycle outcome: "skipped", "completed" or "error".
func RecordReconcileCycle(outcome string, d time.Duration) {
	ReconcilerCycles.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		ReconcilerCycleDuration.Observe(d.Seconds())
	}
}

func RecordReconcileDecision(action string) {
	ReconcilerDecisions.WithLabelValues(action).Inc()
}

func RecordReconcileRecordError() {
	ReconcilerRecordErrors.Inc()
}

func RecordKeyRotation(reason string) {
	KeyPoolRotations.WithLabelValues(reason).Inc()
}

func RecordForcedKeySelection() {
	KeyPoolForcedSelections.Inc()
}

func SetKeysCoolingDown(n int) {
	KeyPoolCoolingDown.Set(float64(n))
}

// RecordProviderRequest records one HTTP call to an external provider.
// statusCode 0 means the request never got a response.
func RecordProviderRequest(provider, operation string, statusCode int, d time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	ProviderRequests.WithLabelValues(provider, operation, status).Inc()
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordCircuitBreakerTransition updates the state gauge and counts the transition.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(circuitStateValue(to))
}

func circuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
