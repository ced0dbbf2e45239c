// Package countdown drives a one-shot timed countdown with per-tick callbacks.
// The scheduler does not care about the duration; the scan flow uses 30
// one-second ticks.
package countdown

import (
	"errors"
	"sync"
	"time"
)

// DefaultInterval is the spacing between ticks.
const DefaultInterval = time.Second

// ErrRunning is returned by Start while a countdown is still active.
var ErrRunning = errors.New("countdown already running")

// Ticker delivers periodic instants.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests swap in a manual clock so no real time passes.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// RealClock is backed by time.Ticker.
type RealClock struct{}

// NewTicker implements Clock.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Scheduler runs one countdown at a time. Callbacks run one after another on
// the scheduler's goroutine without its lock held, so they may call Cancel or
// Start.
type Scheduler struct {
	clock    Clock
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New constructs a Scheduler. A nil clock means RealClock and a non-positive
// interval means DefaultInterval.
func New(clock Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{clock: clock, interval: interval}
}

// Start begins a countdown of duration ticks. onTick receives duration-1
// down to 0, then onComplete runs once. Either callback may be nil.
func (s *Scheduler) Start(duration int, onTick func(remaining int), onComplete func()) error {
	if duration <= 0 {
		return errors.New("countdown duration must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	go s.run(ticker, s.stop, s.done, duration, onTick, onComplete)
	return nil
}

func (s *Scheduler) run(ticker Ticker, stop, done chan struct{}, duration int, onTick func(int), onComplete func()) {
	defer close(done)
	defer ticker.Stop()
	for remaining := duration - 1; remaining >= 0; remaining-- {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}
		if !s.deliver(stop, false) {
			return
		}
		if onTick != nil {
			onTick(remaining)
		}
	}
	if s.deliver(stop, true) && onComplete != nil {
		onComplete()
	}
}

// deliver reports whether the next callback may run, which it may unless stop
// has been closed. The final delivery also marks the countdown finished.
func (s *Scheduler) deliver(stop chan struct{}, last bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
	}
	if last {
		s.running = false
	}
	return true
}

// Cancel stops the active countdown. Once it returns no further callback
// starts; a callback already running finishes normally. Cancelling an idle or
// finished scheduler is a no-op.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

// Running reports whether a countdown is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the goroutine of the most recent countdown has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
