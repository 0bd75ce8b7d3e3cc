// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

const (
	DefaultHardwareEncoder = "h264_nvenc"
	DefaultCRF             = 28

	// ContentTypeMP4 is the media type of VideoTranscoder output.
	ContentTypeMP4 = "video/mp4"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// VideoConfig configures VideoTranscoder.
type VideoConfig struct {
	FFmpegPath      string
	HardwareEncoder string
	CRF             int
	TempDir         string
}

// VideoTranscoder re-encodes videos to H.264 MP4 through ffmpeg.
type VideoTranscoder struct {
	cfg    VideoConfig
	runner Runner
}

// NewVideoTranscoder fills zero fields with defaults. A nil runner uses
// ExecRunner.
func NewVideoTranscoder(cfg VideoConfig, runner Runner) *VideoTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.CRF <= 0 {
		cfg.CRF = DefaultCRF
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &VideoTranscoder{cfg: cfg, runner: runner}
}

// Transcode writes data to a temp file, encodes it and returns the result.
// Temp files are removed whether or not encoding succeeds.
func (v *VideoTranscoder) Transcode(ctx context.Context, data []byte) ([]byte, error) {
	in, err := os.CreateTemp(v.cfg.TempDir, "mediaforge-in-*")
	if err != nil {
		return nil, fmt.Errorf("create input temp: %w", err)
	}
	inPath := in.Name()
	defer os.Remove(inPath)

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("write input temp: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close input temp: %w", err)
	}

	out, err := os.CreateTemp(v.cfg.TempDir, "mediaforge-out-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create output temp: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	if err := v.encode(ctx, inPath, outPath); err != nil {
		return nil, err
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read encoded output: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("encoder produced empty output")
	}
	return result, nil
}

func (v *VideoTranscoder) encode(ctx context.Context, inPath, outPath string) error {
	if v.cfg.HardwareEncoder != "" {
		output, err := v.runner.Run(ctx, v.cfg.FFmpegPath, v.hardwareArgs(inPath, outPath)...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordEncoderFallback()
		logging.Warn().
			Err(err).
			Str("encoder", v.cfg.HardwareEncoder).
			Str("output", tail(output, 512)).
			Msg("Hardware encode failed, falling back to libx264")
	}

	output, err := v.runner.Run(ctx, v.cfg.FFmpegPath, v.softwareArgs(inPath, outPath)...)
	if err != nil {
		return fmt.Errorf("ffmpeg libx264: %w: %s", err, tail(output, 512))
	}
	return nil
}

func (v *VideoTranscoder) hardwareArgs(inPath, outPath string) []string {
	return v.args(inPath, outPath, "-c:v", v.cfg.HardwareEncoder, "-cq", strconv.Itoa(v.cfg.CRF), "-preset", "p5")
}

func (v *VideoTranscoder) softwareArgs(inPath, outPath string) []string {
	return v.args(inPath, outPath, "-c:v", "libx264", "-crf", strconv.Itoa(v.cfg.CRF), "-preset", "medium")
}

func (v *VideoTranscoder) args(inPath, outPath string, codec ...string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inPath}
	args = append(args, codec...)
	return append(args, "-c:a", "aac", "-b:a", "128k", "-movflags", "+faststart", outPath)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
