// Package ratelimit throttles log emission and per-client request rates.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter tracks how often an event fires and allows a log line at most once
// per interval. It is safe for concurrent use.
type Counter struct {
	interval   time.Duration
	now        func() time.Time
	lastLog    atomic.Int64
	total      atomic.Uint64
	suppressed atomic.Uint64
}

// NewCounter constructs a Counter that allows a log at most once per interval.
// A zero or negative interval disables throttling (always logs).
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval, now: time.Now}
}

// Inc records one event. When logging is allowed it also returns how many
// events were suppressed since the previous allowed log.
func (c *Counter) Inc() (total uint64, suppressed uint64, ok bool) {
	if c == nil {
		return 0, 0, true
	}
	total = c.total.Add(1)
	if c.interval <= 0 {
		return total, 0, true
	}
	clock := c.now
	if clock == nil {
		clock = time.Now
	}
	now := clock().UnixNano()
	last := c.lastLog.Load()
	if last != 0 && now-last < c.interval.Nanoseconds() {
		c.suppressed.Add(1)
		return total, 0, false
	}
	if c.lastLog.CompareAndSwap(last, now) {
		return total, c.suppressed.Swap(0), true
	}
	c.suppressed.Add(1)
	return total, 0, false
}

// Total returns the number of recorded events.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
