// Package ratelimit throttles API clients with per-client, per-endpoint
// token buckets.
package ratelimit

import (
	"sync"
	"time"
)

// bucketIdleTTL is how long an unused bucket survives cleanup.
const bucketIdleTTL = time.Hour

// TokenBucket refills at a steady rate up to its capacity.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	updated    time.Time
	lastUsed   time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		updated:    now,
		lastUsed:   now,
	}
}

// refill must be called with mu held.
func (tb *TokenBucket) refill(now time.Time) {
	if elapsed := now.Sub(tb.updated).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	}
	tb.updated = now
}

// take consumes a token if one is available and reports the bucket state.
func (tb *TokenBucket) take(now time.Time) (allowed bool, remaining int, full time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	tb.lastUsed = now
	if tb.tokens >= 1 {
		tb.tokens--
		allowed = true
	}

	full = now
	if missing := tb.capacity - tb.tokens; missing > 0 && tb.refillRate > 0 {
		full = now.Add(time.Duration(missing / tb.refillRate * float64(time.Second)))
	}
	return allowed, int(tb.tokens), full
}

// nextToken returns how long until one token is available.
func (tb *TokenBucket) nextToken() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.tokens >= 1 || tb.refillRate <= 0 {
		return 0
	}
	return time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
}

func (tb *TokenBucket) idleSince(cutoff time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed.Before(cutoff)
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// Limiter manages one bucket per client and endpoint rule.
type Limiter struct {
	config *Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*TokenBucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter. A nil config allows 1000 requests per
// minute per endpoint.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*TokenBucket),
		stop:    make(chan struct{}),
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	}
	return l
}

// Allow checks and consumes the budget of clientID for the endpoint.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	rule := MatchEndpoint(path, method, l.config.EndpointConfigs)
	if rule == nil {
		rule = &EndpointConfig{
			Path:   path,
			Method: method,
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}
	if rule.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	// Prefix rules share one bucket across the paths they match.
	key := clientID + " " + method + " " + rule.Path
	if rule.Path == "" {
		key = clientID + " " + method + " " + path
	}
	bucket := l.bucket(key, rule)

	allowed, remaining, full := bucket.take(l.now())
	info := Info{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetTime: full,
	}
	if !allowed {
		info.RetryAfter = bucket.nextToken()
	}
	return allowed, info
}

func (l *Limiter) bucket(key string, rule *EndpointConfig) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}
	window := rule.Window
	if window <= 0 {
		window = time.Minute
	}
	b := newTokenBucket(capacity, float64(rule.Limit)/window.Seconds(), l.now())
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets idle for longer than bucketIdleTTL.
func (l *Limiter) cleanup() {
	cutoff := l.now().Add(-bucketIdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
