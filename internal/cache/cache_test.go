// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCacheGetSet(t *testing.T) {
	c := New[string, string](time.Minute)

	c.Set("ak_primary", "token-1")
	v, ok := c.Get("ak_primary")
	if !ok || v != "token-1" {
		t.Fatalf("Get = %q, %v; want token-1, true", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Keys != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[string, int](10*time.Second, WithClock(clock.Now))

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Minute)

	clock.Advance(9 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should still be cached")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("a should expire exactly at its TTL")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b has a longer TTL and should be cached")
	}
}

func TestCachePurgeAndDelete(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := New[int, string](time.Second, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		c.Set(i, fmt.Sprint(i))
	}
	c.SetWithTTL(99, "long", time.Hour)
	c.Delete(0)
	c.Delete(42)

	clock.Advance(2 * time.Second)
	if n := c.Purge(); n != 4 {
		t.Errorf("Purge removed %d, want 4", n)
	}
	if s := c.Stats(); s.Keys != 1 || s.Evictions != 5 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[string, int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n%4)
			c.Set(key, n)
			c.Get(key)
			if n%3 == 0 {
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}
