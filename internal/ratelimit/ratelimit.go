// Package ratelimit rate-limits inbound HTTP requests, bounding requests
// per client key (remote address for public routes, bearer token for
// authenticated ones).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out a golang.org/x/time/rate token bucket per key, lazily
// created on first use and capped in count so an unbounded set of keys
// (e.g. spoofable remote addresses) cannot exhaust memory.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
	maxKeys int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a Limiter allowing perMinute requests per minute per key,
// bursting up to perMinute in one instant.
func New(perMinute int) *Limiter {
	return &Limiter{
		rps:     rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		buckets: make(map[string]*bucket),
		maxKeys: 10_000,
	}
}

// Allow reports whether a request keyed by key may proceed, consuming one
// token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.evictOldestLocked()
		}
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// evictOldestLocked drops the least-recently-seen bucket. Called with mu
// held and the map already at capacity.
func (l *Limiter) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, b := range l.buckets {
		if oldestKey == "" || b.lastSeen.Before(oldestAt) {
			oldestKey = k
			oldestAt = b.lastSeen
		}
	}
	delete(l.buckets, oldestKey)
}
