package clock

import "time"

// Clock abstracts time so SLA math and escalation scans are
// deterministic under test. Production code injects Real(); tests
// inject Fake(initial) and advance it explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

type realClock struct{}

// Real returns the Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return time.After(d)
}

func (realClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
