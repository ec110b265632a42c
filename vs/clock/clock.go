// Package clock implements the Voting Server's cached wall clock: a single background task updates a rounded-to-the-second timestamp
// once per second so the per-voter scheduler tasks can compare against the
// cache instead of calling time.Now() on every tick, and so the clock
// source is explicit and injectable for tests rather than a package-level
// global.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock is an injectable source of the current time, so scheduler logic
// never calls time.Now() directly.
type Clock interface {
	Now() time.Time
}

// Cached is a Clock backed by a value refreshed once a second by Run,
// rounded to the nearest second (half a second or more rounds up).
type Cached struct {
	now atomic.Pointer[time.Time]
}

// NewCached returns a Cached clock already holding the current time;
// callers must run Run in a goroutine to keep it refreshed.
func NewCached() *Cached {
	c := &Cached{}
	t := round(time.Now())
	c.now.Store(&t)
	return c
}

// Now returns the most recently cached, rounded time.
func (c *Cached) Now() time.Time {
	return *c.now.Load()
}

// Run refreshes the cached time once a second until ctx is cancelled.
func (c *Cached) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := round(time.Now())
			c.now.Store(&t)
		}
	}
}

// round rounds ts to the nearest second, rounding up at exactly half a
// second.
func round(ts time.Time) time.Time {
	if ts.Nanosecond() >= 500_000_000 {
		ts = ts.Add(time.Second)
	}
	return ts.Truncate(time.Second)
}
