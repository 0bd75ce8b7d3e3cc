// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

//go:build nats

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamConfig configures JetStreamClient.
type JetStreamConfig struct {
	URL string

	// AckWait is how long JetStream waits for an ack before redelivering.
	// It plays the role of the reclaim idle threshold.
	AckWait time.Duration

	// MaxDeliver caps redeliveries. Zero means unlimited.
	MaxDeliver int

	// DefaultMaxLen bounds streams created by EnsureGroup before any Add.
	DefaultMaxLen int64
}

// JetStreamClient implements Client on NATS JetStream. Each log stream maps
// to one JetStream stream and each group to a durable pull consumer.
type JetStreamClient struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg JetStreamConfig

	mu        sync.Mutex
	streams   map[string]bool
	consumers map[string]jetstream.Consumer
	inflight  map[string]jetstream.Msg
	closed    bool
}

// NewJetStreamClient connects to cfg.URL.
func NewJetStreamClient(cfg JetStreamConfig) (*JetStreamClient, error) {
	if cfg.AckWait <= 0 {
		cfg.AckWait = 15 * time.Minute
	}
	if cfg.DefaultMaxLen <= 0 {
		cfg.DefaultMaxLen = 10000
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("mediaforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return &JetStreamClient{
		nc:        nc,
		js:        js,
		cfg:       cfg,
		streams:   make(map[string]bool),
		consumers: make(map[string]jetstream.Consumer),
		inflight:  make(map[string]jetstream.Msg),
	}, nil
}

// streamName maps "events:media.optimize" to "EVENTS_MEDIA_OPTIMIZE".
func streamName(stream string) string {
	r := strings.NewReplacer(":", "_", ".", "_", "*", "_", ">", "_", " ", "_")
	return strings.ToUpper(r.Replace(stream))
}

// subjectName maps "events:media.optimize" to "events.media.optimize".
func subjectName(stream string) string {
	return strings.ReplaceAll(stream, ":", ".")
}

func (c *JetStreamClient) ensureStream(ctx context.Context, stream string, maxLen int64) error {
	c.mu.Lock()
	known := c.streams[stream]
	c.mu.Unlock()
	if known {
		return nil
	}
	if maxLen <= 0 {
		maxLen = c.cfg.DefaultMaxLen
	}

	cfg := jetstream.StreamConfig{
		Name:      streamName(stream),
		Subjects:  []string{subjectName(stream)},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   maxLen,
		Discard:   jetstream.DiscardOld,
		Storage:   jetstream.FileStorage,
	}

	_, err := c.js.Stream(ctx, cfg.Name)
	switch {
	case err == nil:
		if _, err := c.js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := c.js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	default:
		return fmt.Errorf("lookup stream %s: %w", cfg.Name, err)
	}

	c.mu.Lock()
	c.streams[stream] = true
	c.mu.Unlock()
	return nil
}

func (c *JetStreamClient) Add(ctx context.Context, stream string, fields map[string]string, maxLen int64) (string, error) {
	if c.isClosed() {
		return "", ErrClosed
	}
	if err := c.ensureStream(ctx, stream, maxLen); err != nil {
		return "", err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	ack, err := c.js.Publish(ctx, subjectName(stream), data)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", stream, err)
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

func (c *JetStreamClient) EnsureGroup(ctx context.Context, stream, group string) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.ensureStream(ctx, stream, 0); err != nil {
		return err
	}
	cons, err := c.js.CreateOrUpdateConsumer(ctx, streamName(stream), jetstream.ConsumerConfig{
		Durable:       group,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s/%s: %w", stream, group, err)
	}
	c.mu.Lock()
	c.consumers[stream+"|"+group] = cons
	c.mu.Unlock()
	return nil
}

// ReadGroup fetches from each stream in turn, splitting block evenly.
// The consumer argument is informational; JetStream balances a durable
// pull consumer across every client that fetches from it.
func (c *JetStreamClient) ReadGroup(ctx context.Context, group, _ string, streams []string, count int64, block time.Duration) ([]Message, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if len(streams) == 0 {
		return nil, nil
	}
	wait := block / time.Duration(len(streams))

	var out []Message
	for _, stream := range streams {
		c.mu.Lock()
		cons, ok := c.consumers[stream+"|"+group]
		c.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("read %s/%s: %w", stream, group, ErrNoGroup)
		}

		var (
			batch jetstream.MessageBatch
			err   error
		)
		if wait > 0 {
			batch, err = cons.Fetch(int(count), jetstream.FetchMaxWait(wait))
		} else {
			batch, err = cons.FetchNoWait(int(count))
		}
		if err != nil {
			return out, fmt.Errorf("fetch %s/%s: %w", stream, group, err)
		}

		for msg := range batch.Messages() {
			meta, err := msg.Metadata()
			if err != nil {
				continue
			}
			fields := map[string]string{}
			if err := json.Unmarshal(msg.Data(), &fields); err != nil {
				// Undecodable payloads are terminated so they are not redelivered forever.
				_ = msg.Term()
				continue
			}
			id := strconv.FormatUint(meta.Sequence.Stream, 10)
			c.mu.Lock()
			c.inflight[stream+"|"+group+"|"+id] = msg
			c.mu.Unlock()
			out = append(out, Message{
				Stream:     stream,
				ID:         id,
				Fields:     fields,
				Deliveries: int64(meta.NumDelivered),
			})
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			return out, fmt.Errorf("fetch %s/%s: %w", stream, group, err)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, nil
}

func (c *JetStreamClient) Ack(_ context.Context, stream, group string, ids ...string) error {
	if c.isClosed() {
		return ErrClosed
	}
	for _, id := range ids {
		key := stream + "|" + group + "|" + id
		c.mu.Lock()
		msg, ok := c.inflight[key]
		delete(c.inflight, key)
		c.mu.Unlock()
		if !ok {
			continue
		}
		if err := msg.Ack(); err != nil && !errors.Is(err, jetstream.ErrMsgAlreadyAckd) {
			return fmt.Errorf("ack %s/%s/%s: %w", stream, group, id, err)
		}
	}
	return nil
}

// Pending returns nothing: JetStream redelivers after AckWait on its own.
func (c *JetStreamClient) Pending(context.Context, string, string, time.Duration, int64) ([]PendingMessage, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return nil, nil
}

// Claim returns nothing for the same reason as Pending.
func (c *JetStreamClient) Claim(context.Context, string, string, string, time.Duration, ...string) ([]Message, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return nil, nil
}

func (c *JetStreamClient) Ping(context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.nc.RTT(); err != nil {
		return fmt.Errorf("nats rtt: %w", err)
	}
	return nil
}

func (c *JetStreamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.inflight = map[string]jetstream.Msg{}
	c.mu.Unlock()
	c.nc.Close()
	return nil
}

func (c *JetStreamClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
