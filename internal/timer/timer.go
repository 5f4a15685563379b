// Package timer provides one-shot countdown timers that are counted in ticks
// of a fixed period, and a Ticker that advances them from its own goroutine.
package timer

import (
	"fmt"
	"sync"
	"time"
)

// State is the state of a Timer.
type State uint8

const (
	Stopped State = iota
	Running
	Halted
	Expired
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Timer is a one-shot timer. Every method is safe to call concurrently with
// Tick, which is usually called by a Ticker.
type Timer struct {
	period time.Duration

	mu       sync.Mutex
	state    State
	ticks    uint64
	duration uint64
}

// New creates a stopped timer counting ticks of the given period.
func New(period time.Duration) *Timer {
	if period <= 0 {
		panic("timer: non-positive period")
	}
	return &Timer{period: period}
}

// Period returns the tick period of the timer.
func (t *Timer) Period() time.Duration {
	return t.period
}

// StartOneShot arms the timer to expire after d. It only works on a stopped
// timer. A zero duration expires the timer immediately. A duration shorter
// than one period cannot be counted and is rejected.
func (t *Timer) StartOneShot(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Stopped {
		return false
	}

	switch {
	case d == 0:
		t.state = Expired
	case d >= t.period:
		t.duration = uint64(d / t.period)
		t.ticks = 0
		t.state = Running
	default:
		return false
	}

	return true
}

// Tick advances a running timer by one period.
func (t *Timer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Running {
		return
	}

	t.ticks++
	if t.ticks >= t.duration {
		t.state = Expired
	}
}

// Reset moves an expired or stopped timer back to stopped.
func (t *Timer) Reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Expired && t.state != Stopped {
		return false
	}

	t.ticks = 0
	t.state = Stopped
	return true
}

// Halt pauses a running timer.
func (t *Timer) Halt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Running {
		return false
	}

	t.state = Halted
	return true
}

// Continue resumes a halted timer.
func (t *Timer) Continue() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Halted {
		return false
	}

	t.state = Running
	return true
}

// Restart starts counting the last armed duration from zero again. A stopped
// timer has no duration to restart.
func (t *Timer) Restart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Stopped {
		return false
	}

	t.ticks = 0
	t.state = Running
	return true
}

// Stop stops a timer that has not expired. Expired timers must be Reset.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Expired {
		return false
	}

	t.ticks = 0
	t.state = Stopped
	return true
}

// State returns the current state of the timer.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsRunning returns true if the timer is counting.
func (t *Timer) IsRunning() bool { return t.State() == Running }

// IsExpired returns true if the timer has expired.
func (t *Timer) IsExpired() bool { return t.State() == Expired }

// Elapsed returns the time counted so far.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.ticks) * t.period
}
