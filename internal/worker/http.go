// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediaforge/internal/health"
	"github.com/tomtom215/mediaforge/internal/logging"
)

// RouterConfig configures the ops HTTP surface.
type RouterConfig struct {
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int
}

// NewRouter serves health and metrics. pool may be nil for processes that
// only run the reconciler; /metrics is then not mounted.
func NewRouter(checker *health.Checker, pool *Pool, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if cfg.RateLimit > 0 {
		r.Use(httprate.Limit(cfg.RateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		overall := checker.CheckAll(req.Context())
		status := http.StatusOK
		if !overall.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, overall)
	})

	if pool != nil {
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, pool.Snapshot())
		})
	}
	r.Handle("/metrics/prometheus", promhttp.Handler())
	r.Get("/log/level", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"level": logging.LevelString()})
	})
	r.Put("/log/level", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Level string `json:"level"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if err := logging.SetLevelString(body.Level); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logging.CtxWith(req.Context()).Str("level", body.Level).Logger().Info().Msg("Log level changed")
		writeJSON(w, http.StatusOK, map[string]string{"level": logging.LevelString()})
	})
	return r
}

func requestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withID := chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.ContextWithCorrelationID(r.Context(), chimiddleware.GetReqID(r.Context()))
			w.Header().Set("X-Request-Id", logging.CorrelationIDFromContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
		return withID
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode response")
	}
}
