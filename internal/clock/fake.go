package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock pinned to the given time. Time stands still
// until Advance is called; pending After/Sleep waiters fire when the
// clock moves past their deadline, in deadline order.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for tests.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a waiter that fires once the clock advances past
// deadline. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: c.current.Add(d), channel: channel})
	return channel
}

// Sleep blocks until the clock advances past the deadline.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time. Sends are non-blocking; the
// waiter channels are buffered with capacity 1.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current

	var toFire []*fakeWaiter
	var remaining []*fakeWaiter
	for _, waiter := range c.waiters {
		if !waiter.deadline.After(target) {
			toFire = append(toFire, waiter)
		} else {
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(toFire, func(i, j int) bool {
		return toFire[i].deadline.Before(toFire[j].deadline)
	})
	for _, waiter := range toFire {
		select {
		case waiter.channel <- target:
		default:
		}
	}
}

// PendingCount returns the number of waiters not yet fired.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
