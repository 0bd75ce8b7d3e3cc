// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/eventlog"
	"github.com/tomtom215/mediaforge/internal/health"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

var (
	ErrAlreadyRunning = errors.New("worker pool already running")
	ErrNotRunning     = errors.New("worker pool not running")
)

// State is the pool lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

// Handler processes one task.
type Handler func(ctx context.Context, task Task) (Result, error)

// Config tunes the pool.
type Config struct {
	Stream       string
	Group        string
	BatchSize    int64
	BlockTimeout time.Duration

	// Concurrency is the permit count per task type. Types without an
	// entry get one permit.
	Concurrency map[string]int64

	TaskTimeout     time.Duration
	ReclaimInterval time.Duration
	// ReclaimIdle must exceed TaskTimeout, otherwise running tasks are
	// claimed by other consumers.
	ReclaimIdle     time.Duration
	MaxDeliveries   int64
	MetricsInterval time.Duration
	DrainTimeout    time.Duration
	// CancelGrace bounds the wait for cancelled tasks to return once
	// DrainTimeout has passed.
	CancelGrace     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Stream:          "events:" + string(eventbus.MediaOptimize),
		Group:           "media-optimizer",
		BatchSize:       10,
		BlockTimeout:    time.Second,
		Concurrency:     map[string]int64{TaskImage: 4, TaskVideo: 1},
		TaskTimeout:     10 * time.Minute,
		ReclaimInterval: time.Minute,
		ReclaimIdle:     15 * time.Minute,
		MaxDeliveries:   5,
		MetricsInterval: 30 * time.Second,
		DrainTimeout:    30 * time.Second,
		CancelGrace:     5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Stream == "" {
		c.Stream = def.Stream
	}
	if c.Group == "" {
		c.Group = def.Group
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = def.BlockTimeout
	}
	if c.Concurrency == nil {
		c.Concurrency = def.Concurrency
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	if c.ReclaimInterval <= 0 {
		c.ReclaimInterval = def.ReclaimInterval
	}
	if c.ReclaimIdle <= 0 {
		c.ReclaimIdle = def.ReclaimIdle
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = def.CancelGrace
	}
	return c
}

type typeCounters struct {
	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

type route struct {
	handler Handler
	sem     *semaphore.Weighted
	stats   *typeCounters
}

// Pool consumes media tasks. Register handlers with Handle before Start.
type Pool struct {
	client     eventlog.Client
	publisher  eventbus.Publisher
	cfg        Config
	consumer   string
	ownsClient bool
	log        zerolog.Logger

	mu       sync.Mutex
	routes   map[string]*route
	inflight map[string]struct{}

	state atomic.Int32

	runMu      sync.Mutex
	loopCancel context.CancelFunc
	loops      *errgroup.Group
	taskCtx    context.Context
	taskCancel context.CancelFunc
	tasks      sync.WaitGroup
	slotFreed  chan struct{}

	active       atomic.Int64
	processed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
	reclaimed    atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithConsumerName overrides eventlog.ConsumerName.
func WithConsumerName(name string) Option {
	return func(p *Pool) { p.consumer = name }
}

// WithOwnedClient makes Stop close the log client.
func WithOwnedClient() Option {
	return func(p *Pool) { p.ownsClient = true }
}

// New creates a pool. publisher receives dead letters and may be nil, in
// which case fatal messages are only acknowledged.
func New(client eventlog.Client, publisher eventbus.Publisher, cfg Config, opts ...Option) *Pool {
	p := &Pool{
		client:    client,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		log:       logging.WithComponent("worker"),
		routes:    make(map[string]*route),
		inflight:  make(map[string]struct{}),
		slotFreed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.consumer == "" {
		p.consumer = eventlog.ConsumerName()
	}
	return p
}

// Handle registers h for taskType with that type's permit pool.
func (p *Pool) Handle(taskType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.cfg.Concurrency[taskType]
	if n <= 0 {
		n = 1
	}
	p.routes[taskType] = &route{
		handler: h,
		sem:     semaphore.NewWeighted(n),
		stats:   &typeCounters{},
	}
}

func (p *Pool) route(taskType string) *route {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routes[taskType]
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

func (p *Pool) setState(s State) {
	p.state.Store(int32(s))
	metrics.SetWorkerState(int(s))
}

// Consumer is this pool's consumer name within the group.
func (p *Pool) Consumer() string {
	return p.consumer
}

// Start connects, creates the consumer group and launches the loops.
func (p *Pool) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.State() != StateStopped {
		return ErrAlreadyRunning
	}
	p.setState(StateStarting)

	if err := p.client.Ping(ctx); err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("event log unreachable: %w", err)
	}
	if err := p.client.EnsureGroup(ctx, p.cfg.Stream, p.cfg.Group); err != nil {
		p.setState(StateStopped)
		return fmt.Errorf("ensure group: %w", err)
	}

	p.taskCtx, p.taskCancel = context.WithCancel(context.WithoutCancel(ctx))
	loopCtx, cancel := context.WithCancel(ctx)
	p.loopCancel = cancel
	g, gctx := errgroup.WithContext(loopCtx)
	p.loops = g

	p.setState(StateRunning)
	g.Go(func() error { return p.consumeLoop(gctx) })
	g.Go(func() error { return p.reclaimLoop(gctx) })
	g.Go(func() error { return p.metricsLoop(gctx) })

	p.log.Info().
		Str("consumer", p.consumer).
		Str("stream", p.cfg.Stream).
		Str("group", p.cfg.Group).
		Interface("concurrency", p.cfg.Concurrency).
		Msg("Worker pool started")
	return nil
}

// Stop drains the pool. Reads stop at once, running tasks get DrainTimeout
// to finish, and the rest are cancelled and given CancelGrace to return.
func (p *Pool) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.State() != StateRunning {
		return ErrNotRunning
	}
	p.setState(StateDraining)
	p.log.Info().Int64("active_tasks", p.active.Load()).Msg("Worker pool draining")

	p.loopCancel()
	_ = p.loops.Wait()

	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.log.Warn().
			Int64("active_tasks", p.active.Load()).
			Dur("drain_timeout", p.cfg.DrainTimeout).
			Msg("Drain timeout reached, cancelling tasks")
		p.taskCancel()
		select {
		case <-done:
		case <-time.After(p.cfg.CancelGrace):
			p.log.Error().Int64("active_tasks", p.active.Load()).Msg("Tasks ignored cancellation")
		}
	}
	p.taskCancel()

	var closeErr error
	if p.ownsClient {
		closeErr = p.client.Close()
	}
	p.setState(StateStopped)
	p.log.Info().
		Int64("processed", p.processed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("Worker pool stopped")
	return closeErr
}

// Serve runs the pool until ctx is cancelled. It implements suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := p.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		p.log.Error().Err(err).Msg("Worker pool stop failed")
	}
	return ctx.Err()
}

func (p *Pool) String() string {
	return "media-worker"
}

func (p *Pool) maxInflight() int64 {
	var n int64
	for _, c := range p.cfg.Concurrency {
		n += c
	}
	return n + p.cfg.BatchSize
}

// waitForCapacity blocks while too many tasks are queued for permits.
func (p *Pool) waitForCapacity(ctx context.Context) bool {
	limit := p.maxInflight()
	for p.active.Load() >= limit {
		select {
		case <-ctx.Done():
			return false
		case <-p.slotFreed:
		case <-time.After(p.cfg.BlockTimeout):
		}
	}
	return true
}

func (p *Pool) consumeLoop(ctx context.Context) error {
	streams := []string{p.cfg.Stream}
	for {
		if ctx.Err() != nil || p.State() != StateRunning {
			return nil
		}
		if !p.waitForCapacity(ctx) {
			return nil
		}

		msgs, err := p.client.ReadGroup(ctx, p.cfg.Group, p.consumer, streams, p.cfg.BatchSize, p.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error().Err(err).Msg("Worker read failed")
			if errors.Is(err, eventlog.ErrNoGroup) {
				if err := p.client.EnsureGroup(ctx, p.cfg.Stream, p.cfg.Group); err != nil {
					p.log.Error().Err(err).Msg("Recreate consumer group failed")
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.BlockTimeout):
			}
			continue
		}
		for _, m := range msgs {
			p.dispatch(m)
		}
	}
}

// dispatch validates m and starts a detached task for it.
func (p *Pool) dispatch(m eventlog.Message) {
	e, task, err := decodeTask(m)
	if err != nil {
		p.deadLetter(m, task.TaskType, "malformed", err)
		return
	}
	r := p.route(task.TaskType)
	if r == nil {
		p.deadLetter(m, task.TaskType, "unknown_task_type", fmt.Errorf("no handler for task type %q", task.TaskType))
		return
	}

	p.mu.Lock()
	if _, running := p.inflight[m.ID]; running {
		p.mu.Unlock()
		return
	}
	p.inflight[m.ID] = struct{}{}
	p.mu.Unlock()

	p.tasks.Add(1)
	p.active.Add(1)
	r.stats.active.Add(1)
	go p.runTask(m, e, task, r)
}

func (p *Pool) runTask(m eventlog.Message, e *eventbus.Event, task Task, r *route) {
	defer func() {
		r.stats.active.Add(-1)
		p.active.Add(-1)
		p.mu.Lock()
		delete(p.inflight, m.ID)
		p.mu.Unlock()
		p.tasks.Done()
		select {
		case p.slotFreed <- struct{}{}:
		default:
		}
	}()

	ctx := logging.ContextWithCorrelationID(p.taskCtx, e.ID)
	ctx = logging.ContextWithFields(ctx, map[string]string{
		"stream":     m.Stream,
		"message_id": m.ID,
		"task_type":  task.TaskType,
		"record_id":  task.RecordID,
	})
	log := logging.Ctx(ctx)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		log.Warn().Err(err).Msg("Task cancelled while waiting for a permit")
		return
	}
	defer r.sem.Release(1)

	metrics.RecordTaskStart(task.TaskType)
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	result, err := safeHandle(tctx, r.handler, task)
	cancel()
	elapsed := time.Since(start)
	metrics.RecordTaskDone(task.TaskType, result.String(), elapsed)

	switch result {
	case Ack:
		p.ack(m)
		p.processed.Add(1)
		r.stats.processed.Add(1)
		log.Info().Dur("duration", elapsed).Msg("Task completed")
	case Fatal:
		p.failed.Add(1)
		r.stats.failed.Add(1)
		log.Error().Err(err).Dur("duration", elapsed).Msg("Task failed permanently")
		p.deadLetter(m, task.TaskType, "handler_fatal", err)
	default:
		p.failed.Add(1)
		r.stats.failed.Add(1)
		log.Warn().Err(err).Int64("deliveries", m.Deliveries).Dur("duration", elapsed).Msg("Task failed, leaving message pending")
	}
}

func safeHandle(ctx context.Context, h Handler, task Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = Retry, fmt.Errorf("task panic: %v", r)
		}
	}()
	result, err = h(ctx, task)
	if result == Ack && err != nil {
		result = Retry
	}
	return result, err
}

func (p *Pool) ack(m eventlog.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ack(ctx, m.Stream, p.cfg.Group, m.ID); err != nil {
		p.log.Error().Err(err).Str("message_id", m.ID).Msg("Ack failed")
	}
}

// deadLetter publishes m to media.dead_letter and acknowledges it. If the
// publish fails the message stays pending and is retried through reclaim.
func (p *Pool) deadLetter(m eventlog.Message, taskType, reason string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p.publisher != nil {
		payload := map[string]interface{}{
			"stream":     m.Stream,
			"message_id": m.ID,
			"task_type":  taskType,
			"reason":     reason,
			"deliveries": m.Deliveries,
			"consumer":   p.consumer,
			"event":      m.Fields[eventbus.FieldEvent],
		}
		if cause != nil {
			payload["error"] = cause.Error()
		}
		if err := p.publisher.Publish(ctx, eventbus.MediaDeadLetter, payload); err != nil {
			p.log.Error().Err(err).Str("message_id", m.ID).Msg("Dead letter publish failed")
			return
		}
	}

	p.ack(m)
	p.deadLettered.Add(1)
	metrics.RecordDeadLetter(reason)
	p.log.Warn().
		Err(cause).
		Str("message_id", m.ID).
		Str("reason", reason).
		Int64("deliveries", m.Deliveries).
		Msg("Message dead-lettered")
}

func (p *Pool) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.ReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := p.reclaimOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Warn().Err(err).Msg("Reclaim failed")
			} else if n > 0 {
				p.log.Info().Int("claimed", n).Msg("Reclaimed stuck messages")
			}
		}
	}
}

// reclaimOnce claims messages idle longer than ReclaimIdle and either
// resubmits or dead-letters them.
func (p *Pool) reclaimOnce(ctx context.Context) (int, error) {
	pending, err := p.client.Pending(ctx, p.cfg.Stream, p.cfg.Group, p.cfg.ReclaimIdle, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	ids := make([]string, 0, len(pending))
	seen := make(map[string]int64, len(pending))
	p.mu.Lock()
	for _, pm := range pending {
		if _, running := p.inflight[pm.ID]; !running {
			ids = append(ids, pm.ID)
			seen[pm.ID] = pm.Deliveries
		}
	}
	p.mu.Unlock()
	if len(ids) == 0 {
		return 0, nil
	}

	claimed, err := p.client.Claim(ctx, p.cfg.Stream, p.cfg.Group, p.consumer, p.cfg.ReclaimIdle, ids...)
	if err != nil {
		return 0, fmt.Errorf("claim: %w", err)
	}
	metrics.RecordReclaimed(len(claimed))
	p.reclaimed.Add(int64(len(claimed)))

	for _, m := range claimed {
		// The claim itself is one more delivery.
		if m.Deliveries == 0 {
			m.Deliveries = seen[m.ID] + 1
		}
		if p.cfg.MaxDeliveries > 0 && m.Deliveries > p.cfg.MaxDeliveries {
			_, task, _ := decodeTask(m)
			p.deadLetter(m, task.TaskType, "max_deliveries", fmt.Errorf("delivered %d times", m.Deliveries))
			continue
		}
		p.dispatch(m)
	}
	return len(claimed), nil
}

func (p *Pool) metricsLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pending, err := p.client.Pending(ctx, p.cfg.Stream, p.cfg.Group, 0, 10000)
			if err == nil {
				metrics.WorkerPendingMessages.Set(float64(len(pending)))
			}
			s := p.Snapshot()
			p.log.Debug().
				Int64("processed", s.Processed).
				Int64("failed", s.Failed).
				Int64("active_tasks", s.ActiveTasks).
				Int("pending", len(pending)).
				Msg("Worker stats")
		}
	}
}

// TypeStats are per task type counters.
type TypeStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Active    int64 `json:"active"`
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	State        string               `json:"state"`
	Consumer     string               `json:"consumer"`
	Processed    int64                `json:"processed"`
	Failed       int64                `json:"failed"`
	DeadLettered int64                `json:"dead_lettered"`
	Reclaimed    int64                `json:"reclaimed"`
	ActiveTasks  int64                `json:"active_tasks"`
	ByType       map[string]TypeStats `json:"by_type"`
}

// Snapshot returns the current counters.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	types := make([]string, 0, len(p.routes))
	for t := range p.routes {
		types = append(types, t)
	}
	sort.Strings(types)
	byType := make(map[string]TypeStats, len(types))
	for _, t := range types {
		c := p.routes[t].stats
		byType[t] = TypeStats{
			Processed: c.processed.Load(),
			Failed:    c.failed.Load(),
			Active:    c.active.Load(),
		}
	}
	p.mu.Unlock()

	return Stats{
		State:        p.State().String(),
		Consumer:     p.consumer,
		Processed:    p.processed.Load(),
		Failed:       p.failed.Load(),
		DeadLettered: p.deadLettered.Load(),
		Reclaimed:    p.reclaimed.Load(),
		ActiveTasks:  p.active.Load(),
		ByType:       byType,
	}
}

// HealthCheck reports healthy while the consume loop runs and the log
// answers.
func (p *Pool) HealthCheck(ctx context.Context) health.ComponentHealth {
	s := p.Snapshot()
	details := map[string]interface{}{
		"state":        s.State,
		"consumer":     s.Consumer,
		"active_tasks": s.ActiveTasks,
	}
	if p.State() != StateRunning {
		return health.ComponentHealth{Healthy: false, Error: "worker is " + s.State, Details: details}
	}
	if err := p.client.Ping(ctx); err != nil {
		return health.ComponentHealth{Healthy: false, Error: "event log: " + err.Error(), Details: details}
	}
	return health.ComponentHealth{Healthy: true, Message: "worker is running", Details: details}
}
