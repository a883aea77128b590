// Package timeutil abstracts the wall clock so frame scheduling can be tested.
package timeutil

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// NewTimer creates a Timer that sends the current time on its channel after
	// at least duration d.
	NewTimer(d time.Duration) Timer
}

type Timer interface {
	C() <-chan time.Time
	// Stop prevents the Timer from firing. It returns false if the timer already
	// fired or was stopped.
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }
func (t *realTimer) Stop() bool          { return t.timer.Stop() }

// MockClock is a manually controlled clock for testing.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*MockTimer
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires expired timers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()

	pending := make([]*MockTimer, 0, len(timers))
	for _, t := range timers {
		if t.checkAndFire(now) {
			pending = append(pending, t)
		}
	}
	c.mu.Lock()
	c.timers = append(pending, c.timers...)
	c.mu.Unlock()
}

// Pending returns the number of timers that neither fired nor were stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	timers := c.timers
	c.mu.Unlock()
	n := 0
	for _, t := range timers {
		if t.active() {
			n++
		}
	}
	return n
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
	}
	c.timers = append(c.timers, t)
	return t
}

type MockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	stopped  bool
	fired    bool
}

func (t *MockTimer) C() <-chan time.Time {
	return t.ch
}

func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

func (t *MockTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// checkAndFire fires the timer if its deadline passed. It returns true while the
// timer is still pending afterwards.
func (t *MockTimer) checkAndFire(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	if !now.Before(t.deadline) {
		t.fired = true
		select {
		case t.ch <- now:
		default:
		}
		return false
	}
	return true
}
