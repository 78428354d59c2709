package stats

import (
	"time"
)

// Ticker is the part of time.Ticker the latch loop reads.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemTicker struct{ *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.Ticker.C }

// Clock is the time source of latencies and latching. Tests swap in a
// fixed clock to get deterministic frame latencies.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

func (systemClock) Now() time.Time                   { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration  { return time.Since(t) }
func (systemClock) NewTicker(d time.Duration) Ticker { return systemTicker{time.NewTicker(d)} }

// SystemClock reads the wall clock.
func SystemClock() Clock { return systemClock{} }

type fixedClock struct {
	now   time.Time
	since time.Duration
	ticks <-chan time.Time
}

type fixedTicker struct{ ticks <-chan time.Time }

func (c fixedClock) Now() time.Time                 { return c.now }
func (c fixedClock) Since(time.Time) time.Duration  { return c.since }
func (c fixedClock) NewTicker(time.Duration) Ticker { return fixedTicker{c.ticks} }
func (t fixedTicker) C() <-chan time.Time           { return t.ticks }
func (t fixedTicker) Stop()                         {}

// NewFixedClock always reports now, measures every interval as since and
// ticks whenever ticks delivers.
func NewFixedClock(now time.Time, since time.Duration, ticks <-chan time.Time) Clock {
	return fixedClock{now: now, since: since, ticks: ticks}
}
