package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key, typically a client IP. Each bucket
// holds limit tokens and refills one every per/limit, so a burst of limit
// requests passes and steady traffic is held to limit per window.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	per     time.Duration
	now     func() time.Time
	clients map[string]*client
	calls   int
}

type client struct {
	bucket *rate.Limiter
	seen   time.Time
}

// sweepEvery controls how often idle buckets are dropped.
const sweepEvery = 256

// NewLimiter returns a limiter. A non-positive limit or window disables it.
func NewLimiter(limit int, per time.Duration) *Limiter {
	return &Limiter{limit: limit, per: per, now: time.Now, clients: make(map[string]*client)}
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow takes a token for key. When the bucket is empty it returns false and
// how long until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 || l.per <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(rate.Every(l.per/time.Duration(l.limit)), l.limit)}
		l.clients[key] = c
	}
	c.seen = now
	r := c.bucket.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops buckets idle for a full window; they would be full again.
func (l *Limiter) sweep(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.seen) >= l.per {
			delete(l.clients, key)
		}
	}
}
