package main

import (
	"sync"
	"time"
)

// RateLimiter implements a token bucket: bursts up to maxTokens, refilling
// at refillRate tokens per second.
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter builds a limiter admitting rate actions per second. A
// non-positive rate means unlimited.
func NewRateLimiter(rate int) *RateLimiter {
	if rate <= 0 {
		return &RateLimiter{tokens: 1, maxTokens: 1, refillRate: 0, lastRefill: time.Now()}
	}
	return &RateLimiter{
		tokens:     float64(rate),
		maxTokens:  float64(rate),
		refillRate: float64(rate),
		lastRefill: time.Now(),
	}
}

// Allow reports whether one more action is admitted right now.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.refillRate == 0 {
		return true
	}

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

// CommandRateLimiters tracks a per-client command rate limiter, keyed by
// client ID, so one client's burst of set_* commands can't starve the
// coordinator's event loop for everyone else.
type CommandRateLimiters struct {
	limiters map[uint64]*RateLimiter
	rate     int // commands per second per client
	mu       sync.RWMutex
}

// NewCommandRateLimiters builds a manager admitting rate commands/second
// per client.
func NewCommandRateLimiters(rate int) *CommandRateLimiters {
	return &CommandRateLimiters{limiters: make(map[uint64]*RateLimiter), rate: rate}
}

// Allow checks (creating on first use) whether clientID may issue another
// command right now.
func (c *CommandRateLimiters) Allow(clientID uint64) bool {
	if c.rate <= 0 {
		return true
	}
	c.mu.Lock()
	limiter, exists := c.limiters[clientID]
	if !exists {
		limiter = NewRateLimiter(c.rate)
		c.limiters[clientID] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow()
}

// Remove drops a client's limiter on disconnect.
func (c *CommandRateLimiters) Remove(clientID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.limiters, clientID)
}

// IPConnectionRateLimiter throttles new WebSocket connections per source
// IP, independent of the per-client command limiter above.
type IPConnectionRateLimiter struct {
	limiters map[string]*RateLimiter
	rate     int
	mu       sync.RWMutex
}

// NewIPConnectionRateLimiter builds a limiter admitting rate new
// connections per second per IP.
func NewIPConnectionRateLimiter(rate int) *IPConnectionRateLimiter {
	return &IPConnectionRateLimiter{limiters: make(map[string]*RateLimiter), rate: rate}
}

// AllowConnection checks (creating on first use) whether ip may open
// another connection right now.
func (icrl *IPConnectionRateLimiter) AllowConnection(ip string) bool {
	if icrl.rate <= 0 {
		return true
	}
	icrl.mu.Lock()
	limiter, exists := icrl.limiters[ip]
	if !exists {
		limiter = NewRateLimiter(icrl.rate)
		icrl.limiters[ip] = limiter
	}
	icrl.mu.Unlock()
	return limiter.Allow()
}

// Cleanup evicts IPs idle for over 5 minutes, called periodically so the
// map doesn't grow unbounded against churn from transient clients.
func (icrl *IPConnectionRateLimiter) Cleanup() {
	icrl.mu.Lock()
	defer icrl.mu.Unlock()
	now := time.Now()
	for ip, limiter := range icrl.limiters {
		limiter.mu.Lock()
		stale := now.Sub(limiter.lastRefill) > 5*time.Minute
		limiter.mu.Unlock()
		if stale {
			delete(icrl.limiters, ip)
		}
	}
}
