// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/mediaforge/internal/eventbus"
	"github.com/tomtom215/mediaforge/internal/keypool"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/resilience"
	"github.com/tomtom215/mediaforge/internal/validation"
)

// Generator produces a video from a still image.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

type requestedPayload struct {
	RecordID       string `json:"record_id" validate:"required"`
	ImageURL       string `json:"image_url" validate:"required,url"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Duration       int    `json:"duration" validate:"omitempty,oneof=5 10"`
	Mode           string `json:"mode" validate:"omitempty,oneof=std pro"`
}

// HandleRequested turns video.requested events into generation jobs and
// reports the outcome as video.completed or video.failed. Only a failed
// publish is returned as an error.
func HandleRequested(gen Generator, pub eventbus.Publisher) eventbus.HandlerFunc {
	return func(ctx context.Context, e *eventbus.Event) error {
		log := logging.Ctx(ctx).With().Str("event_id", e.ID).Logger()

		var p requestedPayload
		err := e.DecodePayload(&p)
		if err == nil {
			err = validation.ValidateStruct(p)
		}
		if err != nil {
			log.Warn().Err(err).Msg("Rejecting invalid video request")
			return publishFailed(ctx, pub, e.String("record_id"), "invalid_request", err)
		}

		res, err := gen.Generate(ctx, Request{
			ImageURL:       p.ImageURL,
			Prompt:         p.Prompt,
			NegativePrompt: p.NegativePrompt,
			Duration:       p.Duration,
			Mode:           p.Mode,
		})
		if err != nil {
			log.Error().Err(err).Str("record_id", p.RecordID).Msg("Video generation failed")
			return publishFailed(ctx, pub, p.RecordID, failureReason(err), err)
		}

		log.Info().Str("record_id", p.RecordID).Str("task_id", res.TaskID).Msg("Video generated")
		if err := pub.Publish(ctx, eventbus.VideoCompleted, map[string]interface{}{
			"record_id": p.RecordID,
			"task_id":   res.TaskID,
			"video_url": res.VideoURL,
			"duration":  res.Duration,
		}); err != nil {
			return fmt.Errorf("publish %s: %w", eventbus.VideoCompleted, err)
		}
		return nil
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrJobFailed):
		return "job_failed"
	case errors.Is(err, ErrPollTimeout):
		return "timeout"
	case errors.Is(err, keypool.ErrExhausted):
		return "credentials_exhausted"
	case resilience.IsRejected(err):
		return "circuit_open"
	default:
		return keypool.Classify(err).String()
	}
}

func publishFailed(ctx context.Context, pub eventbus.Publisher, recordID, reason string, cause error) error {
	if err := pub.Publish(ctx, eventbus.VideoFailed, map[string]interface{}{
		"record_id": recordID,
		"reason":    reason,
		"error":     cause.Error(),
	}); err != nil {
		return fmt.Errorf("publish %s: %w", eventbus.VideoFailed, err)
	}
	return nil
}
