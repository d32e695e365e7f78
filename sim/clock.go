package sim

import (
	"context"
	"time"
)

// Clock paces Run. A zero interval runs ticks back to back.
type Clock struct {
	interval time.Duration
	next     time.Time
}

// NewClock creates a clock firing every interval.
func NewClock(interval time.Duration) *Clock {
	return &Clock{interval: interval}
}

// Interval returns the tick interval.
func (c *Clock) Interval() time.Duration { return c.interval }

// Wait blocks until the next tick is due or ctx ends. Missed ticks are not
// replayed.
func (c *Clock) Wait(ctx context.Context) error {
	if c.interval <= 0 {
		return ctx.Err()
	}
	now := time.Now()
	if c.next.IsZero() || c.next.Before(now) {
		c.next = now
	}
	timer := time.NewTimer(c.next.Sub(now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.next = c.next.Add(c.interval)
		return nil
	}
}
