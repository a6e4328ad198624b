package rate

import (
	"context"
	"sync"
	"time"
)

// Waiter enforces a minimum wall-clock interval between successive
// paced operations. Unlike a token bucket it never allows bursts: two
// calls to Wait always return at least one interval apart.
type Waiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewWaiter creates a waiter with the given minimum interval.
func NewWaiter(interval time.Duration) *Waiter {
	return &Waiter{interval: interval}
}

// Wait blocks until the next allowed slot and claims it. Returns the
// context error if the context is done before the slot arrives. The
// claimed slot stays consumed on abort; giving it back could let a
// later caller fire inside another waiter's interval.
func (w *Waiter) Wait(ctx context.Context) error {
	w.mu.Lock()
	now := time.Now()
	var delay time.Duration
	if w.next.After(now) {
		delay = w.next.Sub(now)
		w.next = w.next.Add(w.interval)
	} else {
		w.next = now.Add(w.interval)
	}
	w.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interval returns the configured minimum interval.
func (w *Waiter) Interval() time.Duration {
	return w.interval
}
