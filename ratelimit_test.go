package main

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstUpToMax(t *testing.T) {
	rl := NewRateLimiter(3)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() call %d within burst of 3: want true", i)
		}
	}
	if rl.Allow() {
		t.Fatal("Allow() call 4 with no elapsed time: want false (bucket exhausted)")
	}
}

func TestRateLimiterNonPositiveRateIsUnlimited(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() call %d on unlimited limiter: want true", i)
		}
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(1)
	if !rl.Allow() {
		t.Fatal("first Allow() on fresh limiter: want true")
	}
	if rl.Allow() {
		t.Fatal("immediate second Allow(): want false")
	}
	// Force the clock forward without a real sleep: backdate lastRefill so
	// the next Allow() computes enough elapsed time to refill a token.
	rl.lastRefill = time.Now().Add(-2 * time.Second)
	if !rl.Allow() {
		t.Fatal("Allow() after simulated 2s elapsed at 1/s: want true")
	}
}

func TestCommandRateLimitersIsolatesPerClient(t *testing.T) {
	c := NewCommandRateLimiters(1)
	if !c.Allow(1) {
		t.Fatal("client 1 first Allow(): want true")
	}
	if c.Allow(1) {
		t.Fatal("client 1 immediate second Allow(): want false")
	}
	if !c.Allow(2) {
		t.Fatal("client 2 first Allow(): want true (independent bucket from client 1)")
	}
}

func TestCommandRateLimitersRemoveResetsClient(t *testing.T) {
	c := NewCommandRateLimiters(1)
	c.Allow(7)
	if c.Allow(7) {
		t.Fatal("client 7 immediate second Allow(): want false")
	}
	c.Remove(7)
	if !c.Allow(7) {
		t.Fatal("Allow() after Remove() should rebuild a fresh bucket: want true")
	}
}

func TestIPConnectionRateLimiterCleanupEvictsStaleIPs(t *testing.T) {
	icrl := NewIPConnectionRateLimiter(5)
	icrl.AllowConnection("10.0.0.1")
	icrl.mu.Lock()
	icrl.limiters["10.0.0.1"].lastRefill = time.Now().Add(-6 * time.Minute)
	icrl.mu.Unlock()

	icrl.Cleanup()

	icrl.mu.RLock()
	_, exists := icrl.limiters["10.0.0.1"]
	icrl.mu.RUnlock()
	if exists {
		t.Fatal("Cleanup() left a limiter idle for 6 minutes, want evicted")
	}
}
