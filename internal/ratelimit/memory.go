package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/clock"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// MemoryLimiter keeps buckets in process memory. Limits are per instance.
type MemoryLimiter struct {
	cfg   Config
	clock clock.Clock

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

func NewMemoryLimiter(cfg Config, clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:       cfg,
		clock:     clk,
		buckets:   make(map[string]*bucket),
		lastPrune: clk.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, lastRefill: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		intervals := int(elapsed / l.cfg.RefillInterval)
		if intervals > 0 {
			b.tokens = min(l.cfg.Capacity, b.tokens+intervals*l.cfg.RefillTokens)
			b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.cfg.RefillInterval)
		}
	}

	d := Decision{Limit: l.cfg.Capacity}
	if b.tokens > 0 {
		b.tokens--
		d.Allowed = true
		d.Remaining = b.tokens
		return d, nil
	}

	d.RetryAfter = max(0, l.cfg.RefillInterval-now.Sub(b.lastRefill))
	return d, nil
}

// prune drops buckets that have been idle long enough to be full again.
func (l *MemoryLimiter) prune(now time.Time) {
	ttl := l.cfg.idleTTL()
	if now.Sub(l.lastPrune) < ttl {
		return
	}

	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= ttl {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.buckets)
}
