// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package keypool

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// DefaultCooldown is how long a failed credential is skipped.
const DefaultCooldown = 60 * time.Second

// ErrNoCredentials is returned when a pool is built without pairs.
var ErrNoCredentials = errors.New("key pool has no credentials")

// KeyPair is an access/secret credential pair.
type KeyPair struct {
	Access string
	Secret string
}

type entry struct {
	pair        KeyPair
	failedUntil time.Time
}

// KeyStatus describes one credential without exposing its secret.
type KeyStatus struct {
	Index       int       `json:"index"`
	Access      string    `json:"access"`
	Current     bool      `json:"current"`
	CoolingDown bool      `json:"cooling_down"`
	FailedUntil time.Time `json:"failed_until,omitempty"`
}

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	entries  []entry
	current  int
	cooldown time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a pool over pairs in the given order.
func NewManager(pairs []KeyPair, opts ...Option) (*Manager, error) {
	if len(pairs) == 0 {
		return nil, ErrNoCredentials
	}
	m := &Manager{
		entries:  make([]entry, len(pairs)),
		cooldown: DefaultCooldown,
		now:      time.Now,
		log:      logging.WithComponent("keypool"),
	}
	for i, p := range pairs {
		m.entries[i] = entry{pair: p}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Size is the number of credentials in the pool.
func (m *Manager) Size() int {
	return len(m.entries)
}

// Current returns the credential to use and makes it current.
func (m *Manager) Current() KeyPair {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := len(m.entries)
	for i := 0; i < n; i++ {
		idx := (m.current + i) % n
		if !now.Before(m.entries[idx].failedUntil) {
			m.current = idx
			return m.entries[idx].pair
		}
	}

	m.current = 0
	metrics.RecordForcedKeySelection()
	m.log.Warn().Int("keys", n).Msg("All credentials cooling down, forcing first")
	return m.entries[0].pair
}

// MarkFailed puts the current credential on cooldown and moves to the next.
func (m *Manager) MarkFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markLocked(m.current, reason)
}

// MarkKeyFailed puts kp on cooldown. The pointer only moves when kp is
// still current, so a caller holding a stale pair cannot penalize the
// credential another caller rotated to.
func (m *Manager) MarkKeyFailed(kp KeyPair, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.pair == kp {
			m.markLocked(i, reason)
			return
		}
	}
	m.log.Warn().Str("access_key", logging.MaskKey(kp.Access)).Msg("Credential not in pool, ignoring failure")
}

func (m *Manager) markLocked(failed int, reason string) {
	now := m.now()
	m.entries[failed].failedUntil = now.Add(m.cooldown)
	if failed == m.current {
		m.current = (failed + 1) % len(m.entries)
	}

	cooling := 0
	for _, e := range m.entries {
		if now.Before(e.failedUntil) {
			cooling++
		}
	}
	metrics.RecordKeyRotation(reason)
	metrics.SetKeysCoolingDown(cooling)
	m.log.Warn().
		Int("key_index", failed).
		Str("access_key", logging.MaskKey(m.entries[failed].pair.Access)).
		Str("reason", reason).
		Dur("cooldown", m.cooldown).
		Msg("Credential marked failed")
}

// AllKeyPairs returns a copy of every pair in pool order.
func (m *Manager) AllKeyPairs() []KeyPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]KeyPair, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.pair
	}
	return out
}

// Status reports every credential with masked access keys.
func (m *Manager) Status() []KeyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]KeyStatus, len(m.entries))
	for i, e := range m.entries {
		out[i] = KeyStatus{
			Index:       i,
			Access:      logging.MaskKey(e.pair.Access),
			Current:     i == m.current,
			CoolingDown: now.Before(e.failedUntil),
			FailedUntil: e.failedUntil,
		}
	}
	return out
}
