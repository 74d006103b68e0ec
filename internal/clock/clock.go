// Package clock abstracts time so that settlement cooldowns, scheduler
// ticks and watermark arithmetic can be driven deterministically in tests.
package clock

import "time"

// Clock abstracts time operations. Production code uses Real(); tests use
// Fake() and advance time explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for duration d, then calls f. The returned Timer can
	// cancel the pending call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on C every d.
	NewTicker(d time.Duration) *Ticker
}

// Timer represents a scheduled callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns false if the timer has
// already fired or been stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker delivers periodic ticks on C. The channel has capacity 1; ticks
// are dropped when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }

// NowMillis returns c.Now() as integer milliseconds since the epoch, the
// unit every stored timestamp uses.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
