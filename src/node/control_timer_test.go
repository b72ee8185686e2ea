package node

import (
	"testing"
	"time"
)

func TestControlTimer(t *testing.T) {
	timer := NewFixedControlTimer()
	go timer.Run(10 * time.Millisecond)

	select {
	case <-timer.tickCh:
	case <-time.After(time.Second):
		t.Fatal("no first tick")
	}

	if !timer.Reset(10 * time.Millisecond) {
		t.Fatal("reset should succeed while running")
	}

	select {
	case <-timer.tickCh:
	case <-time.After(time.Second):
		t.Fatal("no tick after reset")
	}

	timer.Shutdown()
}

func TestControlTimerNoTickWithoutReset(t *testing.T) {
	timer := NewFixedControlTimer()
	go timer.Run(5 * time.Millisecond)
	defer timer.Shutdown()

	<-timer.tickCh

	select {
	case <-timer.tickCh:
		t.Fatal("timer should wait for a reset")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControlTimerShutdown(t *testing.T) {
	timer := NewFixedControlTimer()
	done := make(chan struct{})
	go func() {
		timer.Run(time.Hour)
		close(done)
	}()

	timer.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return after Shutdown")
	}
	if timer.Reset(time.Millisecond) {
		t.Fatal("reset should fail once the timer is shut down")
	}
}
