// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediaforge/internal/eventlog"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// Message field names on the log.
const (
	FieldEvent = "event"
	FieldType  = "type"
)

var (
	ErrAlreadyRunning = errors.New("event bus already running")
	ErrNotRunning     = errors.New("event bus not running")
)

// Config controls stream naming and the receive loop.
type Config struct {
	StreamPrefix string
	MaxLen       int64
	Group        string
	Source       string
	BatchSize    int64
	BlockTimeout time.Duration

	// ReclaimIdle is how long an entry may stay pending with a consumer of
	// this group before the loop claims it. Zero takes the default; a
	// negative value disables reclaiming.
	ReclaimIdle     time.Duration
	ReclaimInterval time.Duration
}

// DefaultConfig returns the settings used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		StreamPrefix:    "events:",
		MaxLen:          10000,
		Group:           "mediaforge-bus",
		Source:          "mediaforge",
		BatchSize:       10,
		BlockTimeout:    time.Second,
		ReclaimIdle:     15 * time.Minute,
		ReclaimInterval: time.Minute,
	}
}

// HandlerFunc handles one event. Returned errors are logged and counted.
type HandlerFunc func(ctx context.Context, e *Event) error

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, t EventType, payload map[string]interface{}) error
}

// Bus is the event bus. Construct with New.
type Bus struct {
	client eventlog.Client
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	handlers map[EventType][]HandlerFunc

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bus over client. Zero config fields take DefaultConfig values.
func New(client eventlog.Client, cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = def.StreamPrefix
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.Source == "" {
		cfg.Source = def.Source
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = def.BlockTimeout
	}
	if cfg.ReclaimIdle == 0 {
		cfg.ReclaimIdle = def.ReclaimIdle
	}
	if cfg.ReclaimIdle > 0 && cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = def.ReclaimInterval
	}
	return &Bus{
		client:   client,
		cfg:      cfg,
		log:      logging.WithComponent("eventbus"),
		now:      time.Now,
		handlers: make(map[EventType][]HandlerFunc),
	}
}

// StreamName returns the log stream for t.
func (b *Bus) StreamName(t EventType) string {
	return b.cfg.StreamPrefix + string(t)
}

// Publish appends a new event of type t. Errors are returned, never dropped.
func (b *Bus) Publish(ctx context.Context, t EventType, payload map[string]interface{}) error {
	_, err := b.PublishEvent(ctx, NewEvent(t, payload, b.cfg.Source))
	return err
}

// PublishEvent appends e and returns the log entry id.
func (b *Bus) PublishEvent(ctx context.Context, e *Event) (string, error) {
	data, err := Marshal(e)
	if err != nil {
		metrics.RecordPublish(string(e.Type), err)
		return "", err
	}
	id, err := b.client.Add(ctx, b.StreamName(e.Type), map[string]string{
		FieldEvent: string(data),
		FieldType:  string(e.Type),
	}, b.cfg.MaxLen)
	metrics.RecordPublish(string(e.Type), err)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", e.Type, err)
	}
	b.log.Debug().Str("event_type", string(e.Type)).Str("event_id", e.ID).Str("entry_id", id).Msg("Event published")
	return id, nil
}

// Subscribe registers h for t. Handlers run in registration order.
// Subscribing while the loop runs takes effect for streams already being
// read; new event types need a restart to get a consumer group.
func (b *Bus) Subscribe(t EventType, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) subscribedTypes() []EventType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]EventType, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (b *Bus) handlersFor(t EventType) []HandlerFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]HandlerFunc, len(b.handlers[t]))
	copy(hs, b.handlers[t])
	return hs
}

// Start creates consumer groups for every subscribed type and launches the
// receive loop as consumer.
func (b *Bus) Start(ctx context.Context, consumer string) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.done != nil {
		return ErrAlreadyRunning
	}

	types := b.subscribedTypes()
	streams := make([]string, len(types))
	for i, t := range types {
		streams[i] = b.StreamName(t)
		if err := b.client.EnsureGroup(ctx, streams[i], b.cfg.Group); err != nil {
			return fmt.Errorf("ensure group for %s: %w", t, err)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.loop(loopCtx, consumer, streams, b.done)

	b.log.Info().Str("consumer", consumer).Strs("streams", streams).Msg("Event bus started")
	return nil
}

// Stop cancels the receive loop and waits for it to exit.
func (b *Bus) Stop() error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.done == nil {
		return ErrNotRunning
	}
	b.cancel()
	<-b.done
	b.done = nil
	b.cancel = nil
	b.log.Info().Msg("Event bus stopped")
	return nil
}

// Running reports whether the receive loop is active.
func (b *Bus) Running() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	return b.done != nil
}

func (b *Bus) loop(ctx context.Context, consumer string, streams []string, done chan struct{}) {
	defer close(done)
	if len(streams) == 0 {
		<-ctx.Done()
		return
	}

	lastReclaim := b.now()
	for ctx.Err() == nil {
		if b.cfg.ReclaimIdle > 0 && b.now().Sub(lastReclaim) >= b.cfg.ReclaimInterval {
			b.reclaim(ctx, consumer, streams)
			lastReclaim = b.now()
		}

		msgs, err := b.client.ReadGroup(ctx, b.cfg.Group, consumer, streams, b.cfg.BatchSize, b.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error().Err(err).Msg("Event bus read failed")
			if errors.Is(err, eventlog.ErrNoGroup) {
				b.recreateGroups(ctx, streams)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.BlockTimeout):
			}
			continue
		}

		for _, m := range msgs {
			if ctx.Err() != nil {
				// Left pending; picked up again through reclaim.
				return
			}
			b.dispatch(ctx, m)
		}
	}
}

func (b *Bus) recreateGroups(ctx context.Context, streams []string) {
	for _, s := range streams {
		if err := b.client.EnsureGroup(ctx, s, b.cfg.Group); err != nil {
			b.log.Error().Err(err).Str("stream", s).Msg("Recreate consumer group failed")
		}
	}
}

func (b *Bus) reclaim(ctx context.Context, consumer string, streams []string) {
	for _, s := range streams {
		pending, err := b.client.Pending(ctx, s, b.cfg.Group, b.cfg.ReclaimIdle, b.cfg.BatchSize)
		if err != nil || len(pending) == 0 {
			continue
		}
		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}
		claimed, err := b.client.Claim(ctx, s, b.cfg.Group, consumer, b.cfg.ReclaimIdle, ids...)
		if err != nil {
			b.log.Warn().Err(err).Str("stream", s).Msg("Claim failed")
			continue
		}
		for _, m := range claimed {
			b.dispatch(ctx, m)
		}
	}
}

// dispatch runs every handler for the message's event and then acks it.
func (b *Bus) dispatch(ctx context.Context, m eventlog.Message) {
	e, err := Unmarshal([]byte(m.Fields[FieldEvent]))
	if err != nil {
		metrics.RecordDecodeError(m.Stream)
		b.log.Error().Err(err).Str("stream", m.Stream).Str("entry_id", m.ID).Msg("Dropping undecodable event")
		b.ack(ctx, m)
		return
	}

	hctx := logging.ContextWithCorrelationID(ctx, e.ID)
	hctx = logging.ContextWithFields(hctx, map[string]string{
		"event_type": string(e.Type),
		"entry_id":   m.ID,
	})

	failures := 0
	for i, h := range b.handlersFor(e.Type) {
		if err := runHandler(hctx, h, e); err != nil {
			failures++
			logging.Ctx(hctx).Error().Err(err).Int("handler", i).Msg("Event handler failed")
		}
	}
	metrics.RecordConsume(string(e.Type), failures)
	b.ack(ctx, m)
}

func (b *Bus) ack(ctx context.Context, m eventlog.Message) {
	// Acknowledge finished work even while the loop is being cancelled.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := b.client.Ack(ackCtx, m.Stream, b.cfg.Group, m.ID); err != nil {
		b.log.Error().Err(err).Str("stream", m.Stream).Str("entry_id", m.ID).Msg("Ack failed")
	}
}

func runHandler(ctx context.Context, h HandlerFunc, e *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}

// Serve runs the bus until ctx is cancelled. It implements suture.Service.
func (b *Bus) Serve(ctx context.Context) error {
	if err := b.Start(ctx, eventlog.ConsumerName()); err != nil {
		return err
	}
	<-ctx.Done()
	_ = b.Stop()
	return ctx.Err()
}

func (b *Bus) String() string {
	return "event-bus"
}
