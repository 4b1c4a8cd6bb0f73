// Package sim provides pins and a timer that behave like a QADC front end
// without any hardware attached. Transition times come from the same RC
// physics the lookup tables are derived from.
package sim

import (
	"sync"
	"time"

	"github.com/markusressel/qadc2go/internal/hal"
)

// Timer is either a virtual tick counter that only advances when somebody
// waits on it, which makes conversions deterministic and instant, or a
// wall clock based one.
type Timer struct {
	mu       sync.Mutex
	hz       uint32
	realtime bool
	start    time.Time
	now      hal.Tick
}

// NewTimer returns a virtual timer.
func NewTimer(hz uint32) *Timer {
	return &Timer{hz: hz}
}

// NewRealtimeTimer returns a timer following the wall clock.
func NewRealtimeTimer(hz uint32) *Timer {
	return &Timer{
		hz:       hz,
		realtime: true,
		start:    time.Now(),
	}
}

func (t *Timer) Acquire() error {
	return nil
}

func (t *Timer) Hz() uint32 {
	return t.hz
}

func (t *Timer) Now() hal.Tick {
	if t.realtime {
		return hal.TicksAt(time.Since(t.start), t.hz)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

func (t *Timer) WaitUntil(target hal.Tick) {
	now := t.Now()
	delta := target.Since(now)
	if delta == 0 || delta > 1<<31 {
		// already passed
		return
	}
	if t.realtime {
		time.Sleep(hal.DurationOf(delta, t.hz))
		return
	}
	t.Advance(delta)
}

// Advance moves a virtual timer forward. It has no effect on a realtime timer.
func (t *Timer) Advance(ticks uint32) {
	if t.realtime {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = t.now.Add(ticks)
}

// settle moves a virtual timer to the given tick, used by pins to account
// for the time spent waiting on a transition.
func (t *Timer) settle(target hal.Tick) {
	if t.realtime {
		return
	}
	t.WaitUntil(target)
}
