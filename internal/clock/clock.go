// Package clock provides an injectable time source so expiry and
// dispute-window logic can be tested deterministically without real waiting.
package clock

import "time"

// Clock abstracts wall-clock reads and periodic ticking.
type Clock interface {
	Now() time.Time
	// Tick returns a channel that delivers ticks every interval and a stop
	// function releasing the underlying resources.
	Tick(interval time.Duration) (<-chan time.Time, func())
}

// Real is the production Clock backed by the system time.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time { return time.Now().UTC() }

// Tick wraps time.NewTicker.
func (Real) Tick(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

// Fake is a manually advanced Clock for tests. It is not safe for concurrent
// use by multiple writers; tests advance it from a single goroutine.
type Fake struct {
	Current time.Time
	ticks   chan time.Time
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{Current: start, ticks: make(chan time.Time, 16)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time { return f.Current }

// Tick returns the manually fed tick channel; the interval is ignored.
func (f *Fake) Tick(time.Duration) (<-chan time.Time, func()) {
	return f.ticks, func() {}
}

// Advance moves the clock forward and emits one tick.
func (f *Fake) Advance(d time.Duration) {
	f.Current = f.Current.Add(d)
	select {
	case f.ticks <- f.Current:
	default:
	}
}
