//go:build linux

// Package gpiocdev drives QADC pins through the Linux GPIO character
// device. Transition times are taken from the kernel edge event
// timestamps, converted to ticks of the configured frequency.
package gpiocdev

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/warthog618/gpiod"
	"golang.org/x/sys/unix"
)

const (
	Consumer = "qadc2go"

	eventBufferSize = 16
)

var ErrNotEnabled = errors.New("line not requested")

// Timer counts ticks of CLOCK_MONOTONIC, the clock the kernel stamps line
// events with.
type Timer struct {
	hz uint32
}

func NewTimer(hz uint32) *Timer {
	return &Timer{hz: hz}
}

func (t *Timer) Acquire() error {
	var ts unix.Timespec
	return unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
}

func (t *Timer) Hz() uint32 {
	return t.hz
}

func (t *Timer) Now() hal.Tick {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return t.fromDuration(time.Duration(ts.Nano()))
}

func (t *Timer) WaitUntil(target hal.Tick) {
	delta := target.Since(t.Now())
	if delta == 0 || delta > 1<<31 {
		return
	}
	time.Sleep(t.toDuration(delta))
}

func (t *Timer) fromDuration(d time.Duration) hal.Tick {
	return hal.TicksAt(d, t.hz)
}

func (t *Timer) toDuration(ticks uint32) time.Duration {
	return hal.DurationOf(ticks, t.hz)
}

// Chip is an opened GPIO chip the pins of an instance are requested from.
type Chip struct {
	chip *gpiod.Chip
}

func Open(name string) (*Chip, error) {
	chip, err := gpiod.NewChip(name, gpiod.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

func (c *Chip) Close() error {
	return c.chip.Close()
}

// Pins returns one pin per line offset. Lines are requested on Enable.
func (c *Chip) Pins(timer *Timer, offsets ...int) []hal.Pin {
	result := make([]hal.Pin, len(offsets))
	for i, offset := range offsets {
		result[i] = &Pin{
			chip:   c.chip,
			offset: offset,
			timer:  timer,
		}
	}
	return result
}

// Pin is a single line of a chip.
type Pin struct {
	chip   *gpiod.Chip
	offset int
	timer  *Timer

	mu     sync.Mutex
	line   *gpiod.Line
	events chan gpiod.LineEvent
}

func (p *Pin) Enable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line != nil {
		return nil
	}
	p.events = make(chan gpiod.LineEvent, eventBufferSize)
	line, err := p.chip.RequestLine(p.offset,
		gpiod.AsInput,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(p.handleEvent),
	)
	if err != nil {
		return fmt.Errorf("failed to request line %d: %w", p.offset, err)
	}
	p.line = line
	return nil
}

func (p *Pin) handleEvent(evt gpiod.LineEvent) {
	select {
	case p.events <- evt:
	default:
		// nobody is waiting, the event is stale anyway
	}
}

func (p *Pin) requested() (*gpiod.Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line == nil {
		return nil, ErrNotEnabled
	}
	return p.line, nil
}

func (p *Pin) Drive(level hal.Level) error {
	line, err := p.requested()
	if err != nil {
		return err
	}
	return line.Reconfigure(gpiod.AsOutput(int(level)))
}

func (p *Pin) Release() error {
	line, err := p.requested()
	if err != nil {
		return err
	}
	p.drain()
	return line.Reconfigure(gpiod.AsInput, gpiod.WithBothEdges)
}

func (p *Pin) drain() {
	for {
		select {
		case <-p.events:
		default:
			return
		}
	}
}

func (p *Pin) Read() (hal.Level, error) {
	line, err := p.requested()
	if err != nil {
		return hal.Low, err
	}
	value, err := line.Value()
	if err != nil {
		return hal.Low, err
	}
	if value != 0 {
		return hal.High, nil
	}
	return hal.Low, nil
}

func (p *Pin) WaitFor(level hal.Level, deadline hal.Tick) (hal.Tick, bool, error) {
	// the edge may have passed before detection was armed
	current, err := p.Read()
	if err != nil {
		return 0, false, err
	}
	if current == level {
		return p.timer.Now(), true, nil
	}

	edge := gpiod.LineEventFallingEdge
	if level == hal.High {
		edge = gpiod.LineEventRisingEdge
	}

	for {
		remaining := deadline.Since(p.timer.Now())
		if remaining == 0 || remaining > 1<<31 {
			return deadline, false, nil
		}
		select {
		case evt := <-p.events:
			if evt.Type == edge {
				return p.timer.fromDuration(evt.Timestamp), true, nil
			}
		case <-time.After(p.timer.toDuration(remaining)):
			return deadline, false, nil
		}
	}
}

func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line == nil {
		return nil
	}
	err := p.line.Close()
	p.line = nil
	return err
}
