// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/provider/voice"
	"github.com/tomtom215/mediaforge/internal/store"
	"github.com/tomtom215/mediaforge/internal/workqueue"
)

var testNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*store.VoiceRecord
	getErr   map[string]error
	applyErr error
	batches  [][]store.VoiceUpdate
}

func newFakeStore(recs ...*store.VoiceRecord) *fakeStore {
	s := &fakeStore{records: map[string]*store.VoiceRecord{}, getErr: map[string]error{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id string) (*store.VoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return nil, err
	}
	r, ok := s.records[id]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) ApplyUpdates(_ context.Context, updates []store.VoiceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.batches = append(s.batches, updates)
	for _, u := range updates {
		r := s.records[u.ID]
		r.Status = u.Status
		if u.PreviewURL != "" {
			r.PreviewURL = u.PreviewURL
		}
		if u.ErrorMessage != "" {
			r.ErrorMessage = u.ErrorMessage
		}
		r.EventPending = !u.Status.InProgress()
	}
	return nil
}

func (s *fakeStore) MarkPublished(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		r.EventPending = false
	}
	return nil
}

func (s *fakeStore) eventPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].EventPending
}

func (s *fakeStore) status(id string) store.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Status
}

type fakeProvider struct {
	mu         sync.Mutex
	previews   map[string]string
	triggerErr error
	triggered  []string
}

func (p *fakeProvider) GetVoice(_ context.Context, id string) (*voice.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &voice.Voice{VoiceID: id, PreviewURL: p.previews[id]}, nil
}

func (p *fakeProvider) Trigger(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.triggered = append(p.triggered, id)
	return p.triggerErr
}

type published struct {
	Type    eventbus.EventType
	Payload map[string]interface{}
}

type fakeBus struct {
	mu       sync.Mutex
	events   []published
	err      error
	attempts int
}

func (b *fakeBus) Publish(_ context.Context, t eventbus.EventType, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, published{t, payload})
	return nil
}

func (b *fakeBus) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *fakeBus) published() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.events...)
}

type harness struct {
	queue    *workqueue.BadgerQueue
	store    *fakeStore
	provider *fakeProvider
	bus      *fakeBus
	rec      *Reconciler
}

func newHarness(t *testing.T, recs ...*store.VoiceRecord) *harness {
	t.Helper()
	q, err := workqueue.OpenBadger(workqueue.BadgerConfig{InMemory: true}, workqueue.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	h := &harness{
		queue:    q,
		store:    newFakeStore(recs...),
		provider: &fakeProvider{previews: map[string]string{}},
		bus:      &fakeBus{},
	}
	h.rec = New(q, h.store, h.provider, h.bus, Config{MaxAge: 10 * time.Minute},
		WithClock(func() time.Time { return testNow }))
	for _, r := range recs {
		require.NoError(t, q.Enqueue(context.Background(), r.ID))
	}
	return h
}

func record(id string, status store.Status, age time.Duration) *store.VoiceRecord {
	return &store.VoiceRecord{
		ID:              id,
		UserID:          "user-" + id,
		ProviderVoiceID: "prov-" + id,
		Status:          status,
		CreatedAt:       testNow.Add(-age),
	}
}

func (h *harness) queued(t *testing.T) []string {
	t.Helper()
	ids, err := h.queue.GetAll(context.Background())
	require.NoError(t, err)
	return ids
}

func TestCycleSkipsEmptyQueue(t *testing.T) {
	h := newHarness(t)
	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, h.store.batches)
}

func TestCycleDequeuesFinalizedRecordsWithoutEvents(t *testing.T) {
	h := newHarness(t,
		record("a", store.StatusCompleted, time.Minute),
		record("b", store.StatusFailed, time.Hour),
		record("c", store.StatusCompleted, 2*time.Minute),
	)

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Dequeued)
	assert.Empty(t, h.queued(t))
	assert.Empty(t, h.bus.published())
	assert.Empty(t, h.store.batches)
}

func TestCycleCompletesWhenPreviewAppears(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, time.Minute))
	h.provider.previews["prov-a"] = "https://cdn.example/a.mp3"

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, store.StatusCompleted, h.store.status("a"))
	assert.Empty(t, h.queued(t))

	events := h.bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.VoiceCompleted, events[0].Type)
	assert.Equal(t, "https://cdn.example/a.mp3", events[0].Payload["preview_url"])
	assert.Equal(t, false, events[0].Payload["degraded"])
}

func TestCycleTriggersOnceThenWaits(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, time.Minute))
	ctx := context.Background()

	res, err := h.rec.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	triggered, err := h.queue.IsTriggered(ctx, "a")
	require.NoError(t, err)
	assert.True(t, triggered)
	assert.Equal(t, []string{"a"}, h.queued(t), "triggered records stay queued")

	_, err = h.rec.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"prov-a"}, h.provider.triggered, "trigger is not repeated")
	assert.Empty(t, h.bus.published())
}

func TestCycleRetriesFailedTrigger(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, time.Minute))
	h.provider.triggerErr = errors.New("provider busy")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.rec.Cycle(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, h.provider.triggered, 2)
	triggered, err := h.queue.IsTriggered(ctx, "a")
	require.NoError(t, err)
	assert.False(t, triggered)
	assert.Equal(t, []string{"a"}, h.queued(t))
}

// Completing a record past the max age without a preview is a heuristic:
// the trigger succeeded, so the voice is assumed usable even though the
// provider never confirmed it. This test pins that accepted
// false-positive-completion risk.
func TestCycleOldTriggeredRecordCompletesWithoutPreview(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, 11*time.Minute))
	ctx := context.Background()
	require.NoError(t, h.queue.MarkTriggered(ctx, "a"))

	res, err := h.rec.Cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, store.StatusCompleted, h.store.status("a"))
	assert.Empty(t, h.queued(t))

	require.Len(t, h.store.batches, 1)
	assert.Empty(t, h.store.batches[0][0].PreviewURL)

	events := h.bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.VoiceCompleted, events[0].Type)
	assert.Equal(t, true, events[0].Payload["degraded"])

	triggered, err := h.queue.IsTriggered(ctx, "a")
	require.NoError(t, err)
	assert.False(t, triggered, "flag is cleared once the record is final")
}

func TestCycleOldUntriggeredRecordFails(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, 11*time.Minute))

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, store.StatusFailed, h.store.status("a"))
	assert.Empty(t, h.queued(t))
	assert.Empty(t, h.provider.triggered, "no trigger once past max age")

	events := h.bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.VoiceFailed, events[0].Type)
	assert.Equal(t, "user-a", events[0].Payload["user_id"])
}

func TestCycleCommitsOneBatch(t *testing.T) {
	h := newHarness(t,
		record("a", store.StatusProcessing, time.Minute),
		record("b", store.StatusProcessing, 20*time.Minute),
		record("c", store.StatusPending, time.Minute),
	)
	h.provider.previews["prov-a"] = "https://cdn.example/a.mp3"

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, h.store.batches, 1)
	assert.Len(t, h.store.batches[0], 2)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, []string{"c"}, h.queued(t))
}

func TestCycleRecordErrorDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t,
		record("a", store.StatusProcessing, time.Minute),
		record("b", store.StatusProcessing, time.Minute),
	)
	h.provider.previews["prov-b"] = "https://cdn.example/b.mp3"
	h.store.getErr["a"] = errors.New("connection reset")

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, []string{"a"}, h.queued(t), "failed record stays queued")
}

func TestCycleCommitFailureKeepsEverythingQueued(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, 20*time.Minute))
	h.store.applyErr = errors.New("tx aborted")

	_, err := h.rec.Cycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, h.queued(t))
	assert.Empty(t, h.bus.published())
}

func TestCyclePublishFailureKeepsRecordQueuedUntilPublished(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, time.Minute))
	h.provider.previews["prov-a"] = "https://cdn.example/a.mp3"
	h.bus.setErr(errors.New("log unavailable"))

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, h.store.status("a"))
	assert.True(t, h.store.eventPending("a"))
	assert.Equal(t, []string{"a"}, h.queued(t), "kept queued until the event goes out")
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 0, res.Completed)

	h.bus.setErr(nil)
	res, err = h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Empty(t, h.queued(t))
	assert.False(t, h.store.eventPending("a"))
	require.Len(t, h.store.batches, 1, "the record is not finalized twice")

	events := h.bus.published()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.VoiceCompleted, events[0].Type)
	assert.Equal(t, "https://cdn.example/a.mp3", events[0].Payload["preview_url"])
	assert.Equal(t, false, events[0].Payload["degraded"])
}

func TestCycleRepublishesPendingOutcomes(t *testing.T) {
	failed := record("f", store.StatusFailed, 20*time.Minute)
	failed.ErrorMessage = "voice processing timed out"
	failed.EventPending = true
	degraded := record("d", store.StatusCompleted, 20*time.Minute)
	degraded.EventPending = true
	h := newHarness(t, failed, degraded)

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Completed)
	assert.Empty(t, h.queued(t))
	assert.Empty(t, h.store.batches)

	byType := map[eventbus.EventType]published{}
	for _, e := range h.bus.published() {
		byType[e.Type] = e
	}
	require.Len(t, byType, 2)
	assert.Equal(t, "voice processing timed out", byType[eventbus.VoiceFailed].Payload["reason"])
	assert.Equal(t, true, byType[eventbus.VoiceCompleted].Payload["degraded"])
}

func TestCycleDequeuesOrphans(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.queue.Enqueue(context.Background(), "ghost"))

	res, err := h.rec.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dequeued)
	assert.Empty(t, h.queued(t))
}

func TestRunCyclesOnTicksAndStops(t *testing.T) {
	h := newHarness(t, record("a", store.StatusProcessing, time.Minute))
	sched := NewManualScheduler()
	h.rec.sched = sched

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.rec.Serve(ctx) }()

	// The first cycle runs at once and sends the trigger.
	require.Eventually(t, func() bool {
		triggered, _ := h.queue.IsTriggered(context.Background(), "a")
		return triggered
	}, 2*time.Second, 10*time.Millisecond)

	h.provider.mu.Lock()
	h.provider.previews["prov-a"] = "https://cdn.example/a.mp3"
	h.provider.mu.Unlock()
	require.NoError(t, sched.Tick(ctx))

	require.Eventually(t, func() bool {
		return h.store.status("a") == store.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, "voice-reconciler", h.rec.String())
}
