// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/media"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/storage"
)

// ImageEncoder re-encodes still images.
type ImageEncoder interface {
	Transcode(data []byte) ([]byte, error)
}

// VideoEncoder re-encodes video.
type VideoEncoder interface {
	Transcode(ctx context.Context, data []byte) ([]byte, error)
}

// NewImageHandler reads the input blob, re-encodes it as JPEG and writes
// the output blob.
func NewImageHandler(store storage.BlobStore, enc ImageEncoder) Handler {
	return func(ctx context.Context, task Task) (Result, error) {
		return transcodeBlob(ctx, store, task, media.ContentTypeJPEG, func(ctx context.Context, in []byte) ([]byte, error) {
			return enc.Transcode(in)
		})
	}
}

// NewVideoHandler is the video counterpart of NewImageHandler.
func NewVideoHandler(store storage.BlobStore, enc VideoEncoder) Handler {
	return func(ctx context.Context, task Task) (Result, error) {
		return transcodeBlob(ctx, store, task, media.ContentTypeMP4, enc.Transcode)
	}
}

func transcodeBlob(ctx context.Context, store storage.BlobStore, task Task, contentType string, encode func(context.Context, []byte) ([]byte, error)) (Result, error) {
	in, err := store.Get(ctx, task.InputPath)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return Fatal, err
		}
		return Retry, fmt.Errorf("read input: %w", err)
	}

	out, err := encode(ctx, in)
	if err != nil {
		return Retry, fmt.Errorf("transcode %s: %w", task.TaskType, err)
	}

	if err := store.Save(ctx, task.OutputPath, out, contentType); err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return Fatal, err
		}
		return Retry, fmt.Errorf("write output: %w", err)
	}

	metrics.RecordMediaSizes(task.TaskType, len(in), len(out))
	logging.Ctx(ctx).Info().
		Int("input_bytes", len(in)).
		Int("output_bytes", len(out)).
		Float64("reduction_pct", media.Reduction(len(in), len(out))).
		Msg("Media optimized")
	return Ack, nil
}
