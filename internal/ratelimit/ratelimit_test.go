package ratelimit

import (
	"testing"
	"time"
)

func TestCounterThrottlesAndReportsSuppressed(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c := NewCounter(time.Minute)
	c.now = func() time.Time { return now }

	if _, _, ok := c.Inc(); !ok {
		t.Fatalf("expected first event to log")
	}
	for i := 0; i < 3; i++ {
		if _, _, ok := c.Inc(); ok {
			t.Fatalf("expected event %d to be suppressed", i)
		}
	}
	now = now.Add(2 * time.Minute)
	total, suppressed, ok := c.Inc()
	if !ok || total != 5 || suppressed != 3 {
		t.Fatalf("expected total=5 suppressed=3 ok, got %d %d %v", total, suppressed, ok)
	}
}

func TestCounterWithoutIntervalAlwaysLogs(t *testing.T) {
	c := NewCounter(0)
	for i := 0; i < 3; i++ {
		if _, _, ok := c.Inc(); !ok {
			t.Fatalf("expected every event to log")
		}
	}
	if c.Total() != 3 {
		t.Fatalf("expected total 3, got %d", c.Total())
	}
	var nilCounter *Counter
	if _, _, ok := nilCounter.Inc(); !ok {
		t.Fatalf("expected nil counter to allow logging")
	}
}

func TestLimiterBucket(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(2, time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("expected request %d to pass", i)
		}
	}
	ok, retry := l.Allow("10.0.0.1")
	if ok || retry != 30*time.Second {
		t.Fatalf("expected limit with 30s retry, got ok=%v retry=%v", ok, retry)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatalf("expected other client to pass")
	}

	// A denied request takes no token: one refills after 30s.
	now = now.Add(30 * time.Second)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatalf("expected refilled token")
	}
	if ok, _ := l.Allow("10.0.0.1"); ok {
		t.Fatalf("expected bucket empty again")
	}

	now = now.Add(61 * time.Second)
	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("expected full bucket after a window, request %d", i)
		}
	}
}

func TestLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(1, time.Minute).WithClock(func() time.Time { return now })
	l.Allow("idle")
	now = now.Add(2 * time.Minute)
	for i := 1; i < sweepEvery; i++ {
		l.Allow("busy")
	}
	l.mu.Lock()
	_, idle := l.clients["idle"]
	_, busy := l.clients["busy"]
	l.mu.Unlock()
	if idle || !busy {
		t.Fatalf("expected idle client swept and busy kept, idle=%v busy=%v", idle, busy)
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		if ok, _ := l.Allow("x"); !ok {
			t.Fatalf("expected disabled limiter to allow")
		}
	}
}
