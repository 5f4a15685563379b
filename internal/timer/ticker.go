package timer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MaxTimers is the maximum number of timers a Ticker can drive.
const MaxTimers = 10

var (
	// ErrPeriodMismatch is returned when registering a timer whose period is
	// not the ticker's period.
	ErrPeriodMismatch = errors.New("timer period does not match ticker period")
	// ErrRegistered is returned when registering the same timer twice.
	ErrRegistered = errors.New("timer already registered")
	// ErrFull is returned when the ticker already drives MaxTimers timers.
	ErrFull = errors.New("too many timers registered")
)

// Ticker advances registered timers once per period.
type Ticker struct {
	period time.Duration

	mu     sync.Mutex
	timers [MaxTimers]*Timer
	count  int

	ticked chan struct{}
}

// NewTicker creates a ticker with the given period.
func NewTicker(period time.Duration) *Ticker {
	return &Ticker{
		period: period,
		ticked: make(chan struct{}, 1),
	}
}

// C returns a channel that receives a value after Run has ticked the timers.
// Ticks that are not received in time are coalesced.
func (t *Ticker) C() <-chan struct{} {
	return t.ticked
}

// Period returns the ticker's period.
func (t *Ticker) Period() time.Duration {
	return t.period
}

// Register adds the timer to the ticker.
func (t *Ticker) Register(timer *Timer) error {
	if timer.Period() != t.period {
		return ErrPeriodMismatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, registered := range t.timers[:t.count] {
		if registered == timer {
			return ErrRegistered
		}
	}

	if t.count == MaxTimers {
		return ErrFull
	}

	t.timers[t.count] = timer
	t.count++
	return nil
}

// Tick advances every registered timer by one period.
func (t *Ticker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, timer := range t.timers[:t.count] {
		timer.Tick()
	}
}

// Run ticks the registered timers every period until ctx is canceled.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Tick()

			select {
			case t.ticked <- struct{}{}:
			default:
			}
		}
	}
}
