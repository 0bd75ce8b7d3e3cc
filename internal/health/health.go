// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

// Package health aggregates component health checks for the ops endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// StatusType is the overall health status.
type StatusType string

const (
	StatusHealthy   StatusType = "healthy"
	StatusDegraded  StatusType = "degraded"
	StatusUnhealthy StatusType = "unhealthy"
)

// DefaultTimeout bounds each component check.
const DefaultTimeout = 5 * time.Second

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Healthy   bool                   `json:"healthy"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Name      string                 `json:"name"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Checkable is implemented by components that report health.
type Checkable interface {
	HealthCheck(ctx context.Context) ComponentHealth
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) ComponentHealth

func (f CheckFunc) HealthCheck(ctx context.Context) ComponentHealth {
	return f(ctx)
}

// Pinger is anything that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports healthy while p answers Ping.
func PingCheck(p Pinger) Checkable {
	return CheckFunc(func(ctx context.Context) ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return ComponentHealth{Healthy: false, Error: err.Error()}
		}
		return ComponentHealth{Healthy: true}
	})
}

// Overall is the aggregate of every registered check.
type Overall struct {
	Healthy    bool                       `json:"healthy"`
	Status     StatusType                 `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker runs registered checks concurrently.
type Checker struct {
	timeout    time.Duration
	mu         sync.RWMutex
	components map[string]Checkable
}

// NewChecker creates a checker. A non-positive timeout uses DefaultTimeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		timeout:    timeout,
		components: make(map[string]Checkable),
	}
}

// Register adds or replaces a component.
func (h *Checker) Register(name string, c Checkable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = c
}

// CheckAll runs every check. One unhealthy component makes the whole
// result unhealthy.
func (h *Checker) CheckAll(ctx context.Context) Overall {
	h.mu.RLock()
	components := make(map[string]Checkable, len(h.components))
	for name, c := range h.components {
		components[name] = c
	}
	h.mu.RUnlock()

	overall := Overall{
		Healthy:    true,
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(components)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, c := range components {
		wg.Add(1)
		go func(name string, c Checkable) {
			defer wg.Done()
			result := h.check(ctx, name, c)

			mu.Lock()
			defer mu.Unlock()
			overall.Components[name] = result
			if !result.Healthy {
				overall.Healthy = false
				overall.Status = StatusUnhealthy
			} else if result.Degraded && overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		}(name, c)
	}
	wg.Wait()
	return overall
}

func (h *Checker) check(ctx context.Context, name string, c Checkable) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resultCh := make(chan ComponentHealth, 1)
	go func() {
		resultCh <- c.HealthCheck(ctx)
	}()

	var result ComponentHealth
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		result = ComponentHealth{Healthy: false, Error: "health check timeout"}
	}
	result.Name = name
	result.LastCheck = time.Now()
	return result
}
