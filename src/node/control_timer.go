package node

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer paces the mining loop. Each tick is followed by a reset from
// the consumer, so the interval is measured from the end of one attempt to
// the start of the next.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
}

// NewControlTimer ...
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		shutdownCh:   make(chan struct{}),
	}
}

// NewFixedControlTimer ticks exactly after the requested duration.
func NewFixedControlTimer() *ControlTimer {
	fixedTimeout := func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		return time.After(d)
	}
	return NewControlTimer(fixedTimeout)
}

// Run drives the timer until Shutdown. init is the delay before the first tick.
func (c *ControlTimer) Run(init time.Duration) {
	timer := c.timerFactory(init)
	for {
		select {
		case <-timer:
			timer = nil
			select {
			case c.tickCh <- struct{}{}:
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = c.timerFactory(t)
		case <-c.shutdownCh:
			return
		}
	}
}

// Reset arms the timer for d. It returns false if the timer was shut down.
func (c *ControlTimer) Reset(d time.Duration) bool {
	select {
	case c.resetCh <- d:
		return true
	case <-c.shutdownCh:
		return false
	}
}

// Shutdown stops the Run loop.
func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
