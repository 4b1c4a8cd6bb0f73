// Package hal describes the pin and timer primitives a QADC needs from the
// hardware. Everything electrical (pad drive strength, pulls, slew) is the
// concern of the implementation behind these interfaces.
package hal

import (
	"errors"
	"fmt"
	"time"
)

// Level is the logic level of a 1 bit pin
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

// Opposite returns the inverted level
func (l Level) Opposite() Level {
	if l == High {
		return Low
	}
	return High
}

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Tick is a reading of a free running hardware timer. Differences between
// two ticks are computed modulo 2^32, so wrap-around is harmless as long as
// the measured interval is shorter than a full timer period.
type Tick uint32

// Since returns the number of ticks elapsed from start to t.
func (t Tick) Since(start Tick) uint32 {
	return uint32(t - start)
}

// Add returns the tick d ticks after t.
func (t Tick) Add(d uint32) Tick {
	return t + Tick(d)
}

// TicksAt converts a clock reading to the tick count of a timer running at
// hz, wrapping modulo 2^32. Seconds and the sub-second remainder are scaled
// separately to stay within 64 bits.
func TicksAt(d time.Duration, hz uint32) Tick {
	seconds := uint64(d / time.Second)
	remainder := uint64(d % time.Second)
	return Tick(seconds*uint64(hz) + remainder*uint64(hz)/uint64(time.Second))
}

// DurationOf returns the wall time of the given number of ticks at hz.
func DurationOf(ticks uint32, hz uint32) time.Duration {
	return time.Duration(uint64(ticks) * uint64(time.Second) / uint64(hz))
}

// Timer is a monotonic hardware tick counter.
type Timer interface {
	// Acquire (re)allocates the timer for the calling worker.
	Acquire() error
	// Now returns the current tick count.
	Now() Tick
	// WaitUntil blocks until the timer reaches the given tick.
	WaitUntil(t Tick)
	// Hz returns the tick frequency.
	Hz() uint32
}

// Pin is a single bidirectional digital I/O pin.
type Pin interface {
	// Enable claims the pin resource.
	Enable() error
	// Drive switches the pin to output and drives the given level.
	Drive(level Level) error
	// Release switches the pin to a high impedance input.
	Release() error
	// Read samples the current input level.
	Read() (Level, error)
	// WaitFor blocks until the pin reads the given level or the timer passes
	// the deadline. It returns the tick at which the level was observed and
	// false if the deadline was hit first.
	WaitFor(level Level, deadline Tick) (Tick, bool, error)
	// Close releases the pin resource.
	Close() error
}

var ErrNoPins = errors.New("no pins given")

// PreInit enables every pin and acquires the timer. It has to be called
// before a worker starts when the host did not already hand the pin and
// timer resources to the calling goroutine.
func PreInit(timer Timer, pins []Pin) error {
	if len(pins) <= 0 {
		return ErrNoPins
	}
	if err := timer.Acquire(); err != nil {
		return fmt.Errorf("acquire timer: %w", err)
	}
	for idx, pin := range pins {
		if err := pin.Enable(); err != nil {
			return fmt.Errorf("enable pin %d: %w", idx, err)
		}
	}
	return nil
}

// CloseAll releases every pin, returning the first error encountered.
func CloseAll(pins []Pin) error {
	var result error
	for idx, pin := range pins {
		if err := pin.Close(); err != nil && result == nil {
			result = fmt.Errorf("close pin %d: %w", idx, err)
		}
	}
	return result
}
