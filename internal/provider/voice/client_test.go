// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package voice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediaforge/internal/keypool"
)

func TestGetVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
		switch r.URL.Path {
		case "/v1/voices/ready":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"voice_id":    "ready",
				"name":        "Narrator",
				"preview_url": "https://cdn.example/ready.mp3",
			})
		case "/v1/voices/pending":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"voice_id": "pending"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, srv.Client())
	ctx := context.Background()

	v, err := c.GetVoice(ctx, "ready")
	require.NoError(t, err)
	assert.Equal(t, "Narrator", v.Name)
	assert.Equal(t, "https://cdn.example/ready.mp3", v.PreviewURL)

	v, err = c.GetVoice(ctx, "pending")
	require.NoError(t, err)
	assert.Empty(t, v.PreviewURL)

	_, err = c.GetVoice(ctx, "gone")
	assert.ErrorIs(t, err, ErrVoiceNotFound)
}

func TestTrigger(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/v-1", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, TriggerText, body["text"])
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3..."))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	require.NoError(t, c.Trigger(context.Background(), "v-1"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"message":"voice not ready"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	err := c.Trigger(context.Background(), "v-1")
	require.Error(t, err)
	var apiErr *keypool.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestServerErrorsTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	for i := 0; i < 10; i++ {
		_, _ = c.GetVoice(context.Background(), "v")
	}
	assert.Equal(t, "open", c.breaker.State())
	assert.Equal(t, int32(5), calls.Load())
}
