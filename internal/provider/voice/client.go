// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

/*
client.go - Text-to-speech provider client

Voice clones are created asynchronously by the provider. GetVoice reads the
current state of a clone; PreviewURL is empty until the clone is usable.
Trigger asks the provider to synthesize a short sample with the voice, which
makes it materialize the preview sooner.
*/

package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediaforge/internal/keypool"
	"github.com/tomtom215/mediaforge/internal/metrics"
	"github.com/tomtom215/mediaforge/internal/resilience"
)

// TriggerText is the sample synthesized by Trigger.
const TriggerText = "Hello! This is a preview of your new voice."

// ErrVoiceNotFound is returned when the provider does not know the voice.
var ErrVoiceNotFound = errors.New("voice not found")

// Voice is the provider's view of a voice clone.
type Voice struct {
	VoiceID    string            `json:"voice_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	PreviewURL string            `json:"preview_url"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the voice provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker[*Voice]
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	breakerCfg := resilience.DefaultBreakerConfig("voice-provider")
	breakerCfg.IsSuccessful = func(err error) bool {
		if err == nil || errors.Is(err, ErrVoiceNotFound) {
			return true
		}
		var apiErr *keypool.APIError
		return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		breaker:    resilience.NewBreaker[*Voice](breakerCfg),
	}
}

// GetVoice fetches the voice with the provider's id.
func (c *Client) GetVoice(ctx context.Context, voiceID string) (*Voice, error) {
	return c.breaker.Execute(func() (*Voice, error) {
		var v Voice
		if err := c.do(ctx, http.MethodGet, "/v1/voices/"+url.PathEscape(voiceID), "get_voice", nil, &v); err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// Trigger synthesizes TriggerText with the voice and discards the audio.
func (c *Client) Trigger(ctx context.Context, voiceID string) error {
	_, err := c.breaker.Execute(func() (*Voice, error) {
		body := map[string]interface{}{"text": TriggerText}
		return nil, c.do(ctx, http.MethodPost, "/v1/text-to-speech/"+url.PathEscape(voiceID), "trigger", body, nil)
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path, op string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordProviderRequest("voice", op, 0, time.Since(start))
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.RecordProviderRequest("voice", op, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrVoiceNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return keypool.ParseAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
