// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/provider/voice"
	"github.com/tomtom215/mediaforge/internal/store"
	"github.com/tomtom215/mediaforge/internal/workqueue"
)

// VoiceStore loads records and commits a cycle's updates together.
// ApplyUpdates marks finalized records as having an unpublished event;
// MarkPublished clears that marker.
type VoiceStore interface {
	Get(ctx context.Context, id string) (*store.VoiceRecord, error)
	ApplyUpdates(ctx context.Context, updates []store.VoiceUpdate) error
	MarkPublished(ctx context.Context, id string) error
}

// VoiceProvider is the external voice service.
type VoiceProvider interface {
	GetVoice(ctx context.Context, providerID string) (*voice.Voice, error)
	Trigger(ctx context.Context, providerID string) error
}

// Config tunes the loop.
type Config struct {
	Interval time.Duration
	Jitter   time.Duration
	MaxAge   time.Duration
}

// DefaultConfig returns a 30s interval and a 10m maximum age.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		MaxAge:   10 * time.Minute,
	}
}

// CycleResult summarizes one Cycle.
type CycleResult struct {
	Skipped   bool
	Checked   int
	Completed int
	Failed    int
	Triggered int
	Dequeued  int
	Errors    int
}

// Reconciler drives voice records to a final state.
type Reconciler struct {
	queue    workqueue.Queue
	store    VoiceStore
	provider VoiceProvider
	bus      eventbus.Publisher
	cfg      Config
	sched    Scheduler
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithScheduler replaces the interval scheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Reconciler) { r.sched = s }
}

// WithClock replaces time.Now for age computation.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New wires a reconciler. Zero config fields take DefaultConfig values.
func New(q workqueue.Queue, s VoiceStore, p VoiceProvider, bus eventbus.Publisher, cfg Config, opts ...Option) *Reconciler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	r := &Reconciler{
		queue:    q,
		store:    s,
		provider: p,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
		log:      logging.WithComponent("reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sched == nil {
		r.sched = NewIntervalScheduler(cfg.Interval, cfg.Jitter)
	}
	return r
}

// pending is a decided record waiting for the batch commit.
type pending struct {
	rec    *store.VoiceRecord
	action Action
	update store.VoiceUpdate
	// committed is set for records finalized by an earlier cycle whose
	// event still has to go out.
	committed bool
}

// Cycle runs one reconciliation pass.
func (r *Reconciler) Cycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	var res CycleResult

	ids, err := r.queue.GetAll(ctx)
	if err != nil {
		metrics.RecordReconcileCycle("error", time.Since(start))
		return res, fmt.Errorf("list queue: %w", err)
	}
	if len(ids) == 0 {
		res.Skipped = true
		metrics.RecordReconcileCycle("skipped", time.Since(start))
		return res, nil
	}

	var batch []pending
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res.Checked++
		p, err := r.evaluate(ctx, id)
		if err != nil {
			res.Errors++
			metrics.RecordReconcileRecordError()
			r.log.Error().Err(err).Str("voice_id", id).Msg("Reconcile record failed")
			continue
		}
		if p == nil {
			continue
		}
		switch p.action {
		case ActionDequeue:
			if err := r.queue.Dequeue(ctx, id); err != nil {
				res.Errors++
				r.log.Error().Err(err).Str("voice_id", id).Msg("Dequeue finalized record failed")
				continue
			}
			res.Dequeued++
		case ActionTrigger:
			res.Triggered++
		default:
			if p.committed {
				r.finish(ctx, *p, &res)
				continue
			}
			batch = append(batch, *p)
		}
	}

	if err := r.commit(ctx, batch, &res); err != nil {
		metrics.RecordReconcileCycle("error", time.Since(start))
		return res, err
	}

	if n, err := r.queue.Count(ctx); err == nil {
		r.log.Debug().Int64("queue_depth", n).Msg("Reconcile cycle done")
	}
	metrics.RecordReconcileCycle("ok", time.Since(start))
	return res, nil
}

// evaluate decides one record and runs the trigger if that is the decision.
// A nil result means nothing to do this cycle.
func (r *Reconciler) evaluate(ctx context.Context, id string) (p *pending, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()

	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		r.log.Warn().Str("voice_id", id).Msg("Queued voice has no record, dequeuing")
		metrics.RecordReconcileDecision(ActionDequeue.String())
		return &pending{action: ActionDequeue}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if !rec.Status.InProgress() && rec.EventPending {
		r.log.Warn().Str("voice_id", id).Str("status", string(rec.Status)).Msg("Republishing outcome event")
		metrics.RecordReconcileDecision("republish")
		return republish(rec), nil
	}

	in := Input{
		Status: rec.Status,
		Age:    r.now().Sub(rec.CreatedAt),
		MaxAge: r.cfg.MaxAge,
	}
	if in.Status.InProgress() {
		in.PreviewURL = r.previewURL(ctx, rec)
		triggered, err := r.queue.IsTriggered(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read trigger flag: %w", err)
		}
		in.Triggered = triggered
	}

	action := Decide(in)
	metrics.RecordReconcileDecision(action.String())
	log := r.log.With().Str("voice_id", id).Str("action", action.String()).Dur("age", in.Age).Logger()

	now := r.now().UTC()
	switch action {
	case ActionDequeue:
		return &pending{rec: rec, action: action}, nil
	case ActionComplete:
		log.Info().Msg("Voice preview available")
		return &pending{rec: rec, action: action, update: store.VoiceUpdate{
			ID: id, Status: store.StatusCompleted, PreviewURL: in.PreviewURL, At: now,
		}}, nil
	case ActionCompleteDegraded:
		log.Warn().Msg("Voice past max age after trigger, completing without preview")
		return &pending{rec: rec, action: action, update: store.VoiceUpdate{
			ID: id, Status: store.StatusCompleted, At: now,
		}}, nil
	case ActionFail:
		log.Warn().Msg("Voice past max age without trigger, failing")
		return &pending{rec: rec, action: action, update: store.VoiceUpdate{
			ID: id, Status: store.StatusFailed, ErrorMessage: "voice processing timed out", At: now,
		}}, nil
	case ActionTrigger:
		if err := r.provider.Trigger(ctx, rec.ProviderVoiceID); err != nil {
			// Flag stays unset so the trigger is retried next cycle.
			log.Warn().Err(err).Msg("Voice trigger failed")
			return nil, nil
		}
		if err := r.queue.MarkTriggered(ctx, id); err != nil {
			return nil, fmt.Errorf("set trigger flag: %w", err)
		}
		log.Info().Msg("Voice trigger sent")
		return &pending{rec: rec, action: action}, nil
	default:
		return nil, nil
	}
}

// previewURL asks the provider for the voice. Provider errors are logged
// and treated as "no preview yet" so the max-age rule still applies.
func (r *Reconciler) previewURL(ctx context.Context, rec *store.VoiceRecord) string {
	if rec.ProviderVoiceID == "" {
		return ""
	}
	v, err := r.provider.GetVoice(ctx, rec.ProviderVoiceID)
	if err != nil {
		r.log.Warn().Err(err).Str("voice_id", rec.ID).Msg("Voice status lookup failed")
		return ""
	}
	return v.PreviewURL
}

// republish rebuilds the outcome of a record finalized by an earlier cycle.
func republish(rec *store.VoiceRecord) *pending {
	p := &pending{rec: rec, committed: true, update: store.VoiceUpdate{
		ID:           rec.ID,
		Status:       rec.Status,
		PreviewURL:   rec.PreviewURL,
		ErrorMessage: rec.ErrorMessage,
	}}
	switch {
	case rec.Status == store.StatusFailed:
		p.action = ActionFail
	case rec.PreviewURL == "":
		p.action = ActionCompleteDegraded
	default:
		p.action = ActionComplete
	}
	return p
}

// commit applies the batch, then publishes events and dequeues.
func (r *Reconciler) commit(ctx context.Context, batch []pending, res *CycleResult) error {
	if len(batch) == 0 {
		return nil
	}
	updates := make([]store.VoiceUpdate, len(batch))
	for i, p := range batch {
		updates[i] = p.update
	}
	if err := r.store.ApplyUpdates(ctx, updates); err != nil {
		res.Errors += len(batch)
		return fmt.Errorf("commit %d updates: %w", len(batch), err)
	}

	for _, p := range batch {
		r.finish(ctx, p, res)
	}
	return nil
}

// finish publishes the outcome of a committed record and dequeues it. A
// record whose event could not be published stays queued with its
// pending-event marker set, and the next cycle publishes it again.
func (r *Reconciler) finish(ctx context.Context, p pending, res *CycleResult) {
	id := p.rec.ID
	var err error
	switch p.action {
	case ActionComplete, ActionCompleteDegraded:
		err = r.publish(ctx, eventbus.VoiceCompleted, map[string]interface{}{
			"voice_id":          id,
			"user_id":           p.rec.UserID,
			"provider_voice_id": p.rec.ProviderVoiceID,
			"preview_url":       p.update.PreviewURL,
			"degraded":          p.action == ActionCompleteDegraded,
		})
	case ActionFail:
		err = r.publish(ctx, eventbus.VoiceFailed, map[string]interface{}{
			"voice_id":          id,
			"user_id":           p.rec.UserID,
			"provider_voice_id": p.rec.ProviderVoiceID,
			"reason":            p.update.ErrorMessage,
		})
	}
	if err != nil {
		res.Errors++
		return
	}
	if p.action == ActionFail {
		res.Failed++
	} else {
		res.Completed++
	}

	if err := r.store.MarkPublished(ctx, id); err != nil {
		// Still queued and still marked: published again next cycle.
		res.Errors++
		r.log.Error().Err(err).Str("voice_id", id).Msg("Clear pending event marker failed")
		return
	}
	if err := r.queue.Dequeue(ctx, id); err != nil {
		res.Errors++
		r.log.Error().Err(err).Str("voice_id", id).Msg("Dequeue failed after commit")
		return
	}
	if err := r.queue.ClearTriggered(ctx, id); err != nil {
		r.log.Warn().Err(err).Str("voice_id", id).Msg("Clear trigger flag failed")
	}
	res.Dequeued++
}

func (r *Reconciler) publish(ctx context.Context, t eventbus.EventType, payload map[string]interface{}) error {
	if err := r.bus.Publish(ctx, t, payload); err != nil {
		r.log.Error().Err(err).Str("event_type", string(t)).Interface("voice_id", payload["voice_id"]).Msg("Publish failed")
		return err
	}
	return nil
}

// Run cycles until ctx is cancelled: once immediately, then on every
// scheduler tick.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info().
		Dur("interval", r.cfg.Interval).
		Dur("max_age", r.cfg.MaxAge).
		Msg("Reconciler started")
	for {
		cid := logging.GenerateCorrelationID()
		cctx := logging.ContextWithCorrelationID(ctx, cid)
		clog := r.log.With().Str("correlation_id", cid).Logger()
		res, err := r.Cycle(cctx)
		switch {
		case err != nil:
			clog.Error().Err(err).Msg("Reconcile cycle failed")
		case !res.Skipped:
			clog.Info().
				Int("checked", res.Checked).
				Int("completed", res.Completed).
				Int("failed", res.Failed).
				Int("triggered", res.Triggered).
				Int("errors", res.Errors).
				Msg("Reconcile cycle")
		}
		if err := r.sched.Wait(ctx); err != nil {
			r.log.Info().Msg("Reconciler stopped")
			return err
		}
	}
}

// Serve implements suture.Service.
func (r *Reconciler) Serve(ctx context.Context) error {
	return r.Run(ctx)
}

func (r *Reconciler) String() string {
	return "voice-reconciler"
}
