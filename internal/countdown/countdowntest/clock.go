// Package countdowntest provides a manual clock for driving countdowns in
// tests without waiting on real time.
package countdowntest

import (
	"time"

	"github.com/dharsanguruparan/FitScan/internal/countdown"
)

// Clock hands out tickers that only fire when Tick is called.
type Clock struct {
	tickers chan *Ticker
}

// NewClock returns a Clock ready for use.
func NewClock() *Clock {
	return &Clock{tickers: make(chan *Ticker, 16)}
}

// NewTicker implements countdown.Clock.
func (c *Clock) NewTicker(d time.Duration) countdown.Ticker {
	t := &Ticker{c: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers <- t
	return t
}

// Next blocks until the scheduler creates its next ticker.
func (c *Clock) Next() *Ticker {
	return <-c.tickers
}

// Ticker is a manually fired countdown.Ticker.
type Ticker struct {
	c       chan time.Time
	stopped chan struct{}
}

// C implements countdown.Ticker.
func (t *Ticker) C() <-chan time.Time { return t.c }

// Stop implements countdown.Ticker.
func (t *Ticker) Stop() {
	select {
	case <-t.stopped:
	default:
		close(t.stopped)
	}
}

// Tick fires once and reports whether the scheduler received it. It returns
// false once the ticker has been stopped.
func (t *Ticker) Tick() bool {
	select {
	case t.c <- time.Now():
		return true
	case <-t.stopped:
		return false
	}
}
