// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
client.go - Image-to-video provider client

Generation is asynchronous on the provider side: a submit call returns a
task id, and the task is polled until it succeeds or fails. Every request is
signed with a short-lived HS256 token derived from one credential pair of
the key pool. The whole submit+poll sequence is retried with the next
credential when the provider reports a rate limit or a bad credential.
*/

package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediaforge/internal/cache"
	"github.com/tomtom215/mediaforge/internal/keypool"
	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/resilience"
)

const (
	tokenLifetime = 30 * time.Minute
	tokenCacheTTL = 25 * time.Minute
	tokenSkew     = 5 * time.Second

	statusSubmitted  = "submitted"
	statusProcessing = "processing"
	statusSucceed    = "succeed"
	statusFailed     = "failed"
)

var (
	// ErrJobFailed means the provider accepted the task and then failed it.
	ErrJobFailed = errors.New("video generation failed")

	// ErrPollTimeout means the task did not finish within PollTimeout.
	ErrPollTimeout = errors.New("video generation timed out")

	ErrInvalidRequest = errors.New("invalid video request")
)

// Config configures Client.
type Config struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration

	// PollRate caps status requests per second across all jobs.
	PollRate  rate.Limit
	PollBurst int
}

// Request describes one image-to-video job.
type Request struct {
	ImageURL       string
	Prompt         string
	NegativePrompt string
	Duration       int
	Mode           string
}

// Result is a finished job.
type Result struct {
	TaskID   string
	VideoURL string
	Duration string
}

// Client talks to the video provider. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	keys    *keypool.Manager
	tokens  *cache.Cache[string, string]
	limiter *rate.Limiter
	breaker *resilience.Breaker[*Result]
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now for token signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client that draws credentials from keys.
func New(cfg Config, keys *keypool.Manager, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "kling-v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Minute
	}
	if cfg.PollRate <= 0 {
		cfg.PollRate = 5
	}
	if cfg.PollBurst <= 0 {
		cfg.PollBurst = 5
	}

	breakerCfg := resilience.DefaultBreakerConfig("video-provider")
	breakerCfg.IsSuccessful = providerAnswered

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		keys:    keys,
		limiter: rate.NewLimiter(cfg.PollRate, cfg.PollBurst),
		breaker: resilience.NewBreaker[*Result](breakerCfg),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = cache.New[string, string](tokenCacheTTL, cache.WithClock(c.now))
	return c
}

// providerAnswered keeps client-side and job-level errors from tripping the
// breaker; only transport failures and 5xx count.
func providerAnswered(err error) bool {
	if err == nil || errors.Is(err, ErrJobFailed) || errors.Is(err, ErrInvalidRequest) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *keypool.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}

// Generate submits req and waits for the video, rotating credentials on
// rate-limit and credential errors.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.ImageURL == "" {
		return nil, fmt.Errorf("%w: image url is required", ErrInvalidRequest)
	}
	return c.breaker.Execute(func() (*Result, error) {
		return keypool.Do(ctx, c.keys, c.InvalidateToken, func(ctx context.Context, kp keypool.KeyPair) (*Result, error) {
			return c.generateWith(ctx, kp, req)
		})
	})
}

func (c *Client) generateWith(ctx context.Context, kp keypool.KeyPair, req Request) (*Result, error) {
	token, err := c.Token(kp)
	if err != nil {
		return nil, err
	}
	taskID, err := c.submit(ctx, token, req)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Str("task_id", taskID).
		Str("access_key", logging.MaskKey(kp.Access)).
		Msg("Video task submitted")
	return c.poll(ctx, token, taskID)
}

// Token returns the cached auth token for kp, signing a new one if needed.
func (c *Client) Token(kp keypool.KeyPair) (string, error) {
	if tok, ok := c.tokens.Get(kp.Access); ok {
		return tok, nil
	}
	now := c.now()
	claims := jwt.MapClaims{
		"iss": kp.Access,
		"exp": now.Add(tokenLifetime).Unix(),
		"nbf": now.Add(-tokenSkew).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(kp.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	c.tokens.Set(kp.Access, tok)
	return tok, nil
}

// InvalidateToken drops the cached token for kp.
func (c *Client) InvalidateToken(kp keypool.KeyPair) {
	c.tokens.Delete(kp.Access)
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type taskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			URL      string `json:"url"`
			Duration string `json:"duration"`
		} `json:"videos"`
	} `json:"task_result"`
}

func (c *Client) submit(ctx context.Context, token string, req Request) (string, error) {
	body := map[string]interface{}{
		"model_name": c.cfg.Model,
		"image":      req.ImageURL,
	}
	if req.Prompt != "" {
		body["prompt"] = req.Prompt
	}
	if req.NegativePrompt != "" {
		body["negative_prompt"] = req.NegativePrompt
	}
	if req.Duration > 0 {
		body["duration"] = fmt.Sprintf("%d", req.Duration)
	}
	if req.Mode != "" {
		body["mode"] = req.Mode
	}

	var data taskData
	if err := c.do(ctx, http.MethodPost, "/v1/videos/image2video", "submit", token, body, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", errors.New("submit response has no task id")
	}
	return data.TaskID, nil
}

func (c *Client) poll(ctx context.Context, token, taskID string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.pollErr(ctx, taskID, err)
		}
		var data taskData
		if err := c.do(ctx, http.MethodGet, "/v1/videos/image2video/"+taskID, "poll", token, nil, &data); err != nil {
			return nil, c.pollErr(ctx, taskID, err)
		}

		switch data.TaskStatus {
		case statusSucceed:
			if len(data.TaskResult.Videos) == 0 {
				return nil, fmt.Errorf("%w: task %s succeeded without a video", ErrJobFailed, taskID)
			}
			v := data.TaskResult.Videos[0]
			return &Result{TaskID: taskID, VideoURL: v.URL, Duration: v.Duration}, nil
		case statusFailed:
			return nil, fmt.Errorf("%w: task %s: %s", ErrJobFailed, taskID, data.TaskStatusMsg)
		case statusSubmitted, statusProcessing:
		default:
			logging.Ctx(ctx).Warn().Str("task_id", taskID).Str("status", data.TaskStatus).Msg("Unknown video task status")
		}

		select {
		case <-ctx.Done():
			return nil, c.pollErr(ctx, taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) pollErr(ctx context.Context, taskID string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: task %s after %s", ErrPollTimeout, taskID, c.cfg.PollTimeout)
	}
	return err
}

// do sends a JSON request and decodes the envelope's data into out.
// Non-2xx responses and envelopes with a non-zero code become
// *keypool.APIError.
func (c *Client) do(ctx context.Context, method, path, op, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordProviderRequest("video", op, 0, time.Since(start))
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest("video", op, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return keypool.ParseAPIError(resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	if env.Code != 0 {
		return &keypool.APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", op, err)
		}
	}
	return nil
}
