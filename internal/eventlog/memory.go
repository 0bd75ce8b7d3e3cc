// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package eventlog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process Client with Redis Streams semantics.
// Data does not survive the process.
type MemoryClient struct {
	mu      sync.Mutex
	streams map[string]*memStream
	seq     uint64
	now     func() time.Time
	wake    chan struct{}
	closed  bool
}

type memStream struct {
	entries []memEntry
	groups  map[string]*memGroup
}

type memEntry struct {
	id     string
	seq    uint64
	fields map[string]string
}

type memGroup struct {
	lastDelivered uint64
	pending       map[string]*memPending
}

type memPending struct {
	seq         uint64
	consumer    string
	deliveredAt time.Time
	deliveries  int64
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithMemoryClock replaces time.Now for idle-time computation.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryClient) { c.now = now }
}

// NewMemoryClient returns an empty in-memory log.
func NewMemoryClient(opts ...MemoryOption) *MemoryClient {
	c := &MemoryClient{
		streams: make(map[string]*memStream),
		now:     time.Now,
		wake:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryClient) Add(_ context.Context, stream string, fields map[string]string, maxLen int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}

	s := c.streamLocked(stream)
	c.seq++
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	id := fmt.Sprintf("%d-%d", c.now().UnixMilli(), c.seq)
	s.entries = append(s.entries, memEntry{id: id, seq: c.seq, fields: copied})
	if maxLen > 0 && int64(len(s.entries)) > maxLen {
		s.entries = append([]memEntry(nil), s.entries[int64(len(s.entries))-maxLen:]...)
	}

	close(c.wake)
	c.wake = make(chan struct{})
	return id, nil
}

func (c *MemoryClient) EnsureGroup(_ context.Context, stream, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	s := c.streamLocked(stream)
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = &memGroup{pending: make(map[string]*memPending)}
	}
	return nil
}

func (c *MemoryClient) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]Message, error) {
	var timeout <-chan time.Time
	if block > 0 {
		t := time.NewTimer(block)
		defer t.Stop()
		timeout = t.C
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		msgs, err := c.readLocked(group, consumer, streams, count)
		wake := c.wake
		c.mu.Unlock()

		if err != nil || len(msgs) > 0 || timeout == nil {
			return msgs, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, nil
		case <-wake:
		}
	}
}

func (c *MemoryClient) readLocked(group, consumer string, streams []string, count int64) ([]Message, error) {
	var out []Message
	for _, name := range streams {
		s, ok := c.streams[name]
		if !ok {
			return nil, fmt.Errorf("read %s/%s: %w", name, group, ErrNoGroup)
		}
		g, ok := s.groups[group]
		if !ok {
			return nil, fmt.Errorf("read %s/%s: %w", name, group, ErrNoGroup)
		}
		var n int64
		for _, e := range s.entries {
			if e.seq <= g.lastDelivered {
				continue
			}
			if count > 0 && n >= count {
				break
			}
			g.lastDelivered = e.seq
			g.pending[e.id] = &memPending{seq: e.seq, consumer: consumer, deliveredAt: c.now(), deliveries: 1}
			out = append(out, Message{Stream: name, ID: e.id, Fields: copyFields(e.fields), Deliveries: 1})
			n++
		}
	}
	return out, nil
}

func (c *MemoryClient) Ack(_ context.Context, stream, group string, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	s, ok := c.streams[stream]
	if !ok {
		return nil
	}
	g, ok := s.groups[group]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	return nil
}

func (c *MemoryClient) Pending(_ context.Context, stream, group string, minIdle time.Duration, count int64) ([]PendingMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	g, err := c.groupLocked(stream, group)
	if err != nil {
		return nil, err
	}

	now := c.now()
	out := make([]PendingMessage, 0, len(g.pending))
	for id, p := range g.pending {
		idle := now.Sub(p.deliveredAt)
		if idle < minIdle {
			continue
		}
		out = append(out, PendingMessage{ID: id, Consumer: p.consumer, Idle: idle, Deliveries: p.deliveries})
	}
	sort.Slice(out, func(i, j int) bool { return idSeq(out[i].ID) < idSeq(out[j].ID) })
	if count > 0 && int64(len(out)) > count {
		out = out[:count]
	}
	return out, nil
}

func (c *MemoryClient) Claim(_ context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	g, err := c.groupLocked(stream, group)
	if err != nil {
		return nil, err
	}
	s := c.streams[stream]

	now := c.now()
	var out []Message
	for _, id := range ids {
		p, ok := g.pending[id]
		if !ok || now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		e, ok := s.find(id)
		if !ok {
			delete(g.pending, id)
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		out = append(out, Message{Stream: stream, ID: id, Fields: copyFields(e.fields), Deliveries: p.deliveries})
	}
	return out, nil
}

func (c *MemoryClient) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.wake)
	}
	return nil
}

// Len returns the number of retained entries in stream.
func (c *MemoryClient) Len(stream string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[stream]; ok {
		return len(s.entries)
	}
	return 0
}

func (c *MemoryClient) streamLocked(name string) *memStream {
	s, ok := c.streams[name]
	if !ok {
		s = &memStream{groups: make(map[string]*memGroup)}
		c.streams[name] = s
	}
	return s
}

func (c *MemoryClient) groupLocked(stream, group string) (*memGroup, error) {
	s, ok := c.streams[stream]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", stream, group, ErrNoGroup)
	}
	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", stream, group, ErrNoGroup)
	}
	return g, nil
}

func (s *memStream) find(id string) (memEntry, bool) {
	for _, e := range s.entries {
		if e.id == id {
			return e, true
		}
	}
	return memEntry{}, false
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func idSeq(id string) uint64 {
	_, seq, _ := strings.Cut(id, "-")
	n, _ := strconv.ParseUint(seq, 10, 64)
	return n
}
