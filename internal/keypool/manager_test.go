// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package keypool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func threePairs() []KeyPair {
	return []KeyPair{
		{Access: "access-key-one", Secret: "s1"},
		{Access: "access-key-two", Secret: "s2"},
		{Access: "access-key-three", Secret: "s3"},
	}
}

func newTestManager(t *testing.T, pairs []KeyPair) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(pairs, WithClock(clock.Now), WithCooldown(time.Minute))
	require.NoError(t, err)
	return m, clock
}

func TestNewManagerRequiresPairs(t *testing.T) {
	_, err := NewManager(nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCurrentIsStableWithoutFailures(t *testing.T) {
	m, _ := newTestManager(t, threePairs())
	assert.Equal(t, "s1", m.Current().Secret)
	assert.Equal(t, "s1", m.Current().Secret)
}

func TestMarkFailedRotatesAndSkipsDuringCooldown(t *testing.T) {
	m, clock := newTestManager(t, threePairs())

	first := m.Current()
	m.MarkFailed("rate_limited")
	second := m.Current()
	assert.NotEqual(t, first, second)
	assert.Equal(t, "s2", second.Secret)

	// The failed entry stays skipped while cooling down, even after the
	// pointer wraps around.
	m.MarkFailed("rate_limited")
	assert.Equal(t, "s3", m.Current().Secret)
	m.MarkFailed("rate_limited")

	clock.Advance(30 * time.Second)
	forced := m.Current()
	assert.Equal(t, "s1", forced.Secret, "all cooling down falls back to the first entry")

	clock.Advance(31 * time.Second)
	assert.Equal(t, "s1", m.Current().Secret)
}

func TestFailedEntrySkippedAfterWrap(t *testing.T) {
	m, clock := newTestManager(t, threePairs())

	m.Current()
	m.MarkFailed("credential") // s1 cooling
	assert.Equal(t, "s2", m.Current().Secret)
	clock.Advance(10 * time.Second)
	m.MarkFailed("credential") // s2 cooling, pointer at s3
	assert.Equal(t, "s3", m.Current().Secret)

	clock.Advance(55 * time.Second) // s1 recovered, s2 still cooling
	m.MarkFailed("credential")      // s3 cooling, pointer wraps to s1
	assert.Equal(t, "s1", m.Current().Secret)
	m.MarkFailed("credential") // s1 cooling again, pointer at s2 (cooling)
	assert.Equal(t, "s1", m.Current().Secret, "forced selection when none is available")

	clock.Advance(10 * time.Second) // s2 recovered
	assert.Equal(t, "s2", m.Current().Secret)
}

// Two request paths start on the same credential. The second failure
// report for it must not put the credential the pool already rotated to
// on cooldown.
func TestMarkKeyFailedWithStalePairLeavesNewCurrentAlone(t *testing.T) {
	m, _ := newTestManager(t, threePairs())

	pathA := m.Current()
	pathB := m.Current()
	require.Equal(t, pathA, pathB)

	m.MarkKeyFailed(pathB, "rate_limited")
	assert.Equal(t, "s2", m.Current().Secret)

	m.MarkKeyFailed(pathA, "rate_limited")
	assert.Equal(t, "s2", m.Current().Secret)

	status := m.Status()
	assert.True(t, status[0].CoolingDown)
	assert.False(t, status[1].CoolingDown)
	assert.False(t, status[2].CoolingDown)
}

func TestMarkKeyFailedUnknownPairIsIgnored(t *testing.T) {
	m, _ := newTestManager(t, threePairs())
	m.MarkKeyFailed(KeyPair{Access: "stranger", Secret: "x"}, "credential")
	assert.Equal(t, "s1", m.Current().Secret)
	for _, st := range m.Status() {
		assert.False(t, st.CoolingDown)
	}
}

func TestAllCoolingDownStillReturnsPair(t *testing.T) {
	m, _ := newTestManager(t, threePairs()[:1])
	m.MarkFailed("rate_limited")
	kp := m.Current()
	assert.Equal(t, "s1", kp.Secret)
}

func TestAllKeyPairsReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t, threePairs())
	pairs := m.AllKeyPairs()
	require.Len(t, pairs, 3)
	pairs[0].Secret = "mutated"
	assert.Equal(t, "s1", m.AllKeyPairs()[0].Secret)
}

func TestStatusMasksAccessKeys(t *testing.T) {
	m, _ := newTestManager(t, threePairs())
	m.MarkFailed("credential")

	status := m.Status()
	require.Len(t, status, 3)
	assert.Equal(t, "acce****ne", status[0].Access)
	assert.True(t, status[0].CoolingDown)
	assert.False(t, status[0].Current)
	assert.True(t, status[1].Current)
	assert.False(t, status[1].CoolingDown)
}

func TestManagerConcurrentUse(t *testing.T) {
	m, _ := newTestManager(t, threePairs())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Current()
				if (i+j)%7 == 0 {
					m.MarkFailed("rate_limited")
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.AllKeyPairs(), 3)
}
