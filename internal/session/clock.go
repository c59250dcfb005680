package session

import (
	"sync"
	"time"
)

// Source is the wall-clock read behind all elapsed-time math. The production
// source returns time.Now(), which carries Go's monotonic reading, so a
// deadline comparison never runs backwards under NTP adjustment. Tests swap
// in a manual source to step time without sleeping.
type Source interface {
	Now() time.Time
}

// SystemSource reads the system clock.
type SystemSource struct{}

// Now implements Source.
func (SystemSource) Now() time.Time { return time.Now() }

// Ticker is the countdown pulse a session consumes. Start is a no-op after
// the first call and returns the same channel; Stop is idempotent.
type Ticker interface {
	Start(interval time.Duration) <-chan time.Time
	Stop()
}

// Clock emits one tick per interval on the channel returned by Start until
// Stop is called. No tick is ever delivered after Stop: ticks are forwarded
// through an unbuffered channel by a goroutine that abandons any pending
// send the moment the stop channel closes, rather than handing the raw
// time.Ticker channel (which can hold a buffered, already-fired tick) to the
// consumer. The tick channel is closed after Stop so range loops terminate.
type Clock struct {
	mu      sync.Mutex
	out     chan time.Time
	stop    chan struct{}
	started bool
	stopped bool
}

// NewClock returns an idle clock.
func NewClock() *Clock {
	return &Clock{
		out:  make(chan time.Time),
		stop: make(chan struct{}),
	}
}

// Start begins ticking every interval. Intervals of zero or less default to
// one second. Calling Start on a running or stopped clock starts nothing new
// and returns the same channel.
func (c *Clock) Start(interval time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if interval <= 0 {
		interval = time.Second
	}
	if c.started || c.stopped {
		return c.out
	}
	c.started = true
	go c.run(interval)
	return c.out
}

func (c *Clock) run(interval time.Duration) {
	defer close(c.out)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case t := <-ticker.C:
			select {
			case c.out <- t:
			case <-c.stop:
				return
			}
		case <-c.stop:
			return
		}
	}
}

// Stop halts the interval. Safe to call repeatedly and before Start; a clock
// stopped before it ever started will never tick.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	if !c.started {
		// run() owns closing out once started; with no run goroutine the
		// channel is closed here so consumers never block on a dead clock.
		close(c.out)
	}
}
