package sim

import (
	"errors"
	"sync"

	"github.com/markusressel/qadc2go/internal/hal"
)

var (
	ErrNotEnabled = errors.New("pin not enabled")
	ErrClosed     = errors.New("pin closed")
)

// Pin is a simulated QADC pin.
type Pin struct {
	mu sync.Mutex

	timer    *Timer
	model    Model
	position float64

	enabled    bool
	closed     bool
	driving    bool
	driven     hal.Level
	releasedAt hal.Tick
	settled    bool
}

func NewPin(timer *Timer, model Model, position float64) *Pin {
	return &Pin{
		timer:    timer,
		model:    model,
		position: position,
		settled:  true,
	}
}

// NewPins creates one pin per position, all sharing timer and model.
func NewPins(timer *Timer, model Model, positions ...float64) []hal.Pin {
	result := make([]hal.Pin, len(positions))
	for i, position := range positions {
		result[i] = NewPin(timer, model, position)
	}
	return result
}

// SetPosition moves the simulated knob.
func (p *Pin) SetPosition(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = clampPosition(position)
}

func (p *Pin) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SetModel swaps the electrical model, e.g. to simulate a broken wire.
func (p *Pin) SetModel(model Model) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
}

func (p *Pin) Enable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.enabled = true
	return nil
}

func (p *Pin) check() error {
	if p.closed {
		return ErrClosed
	}
	if !p.enabled {
		return ErrNotEnabled
	}
	return nil
}

func (p *Pin) Drive(level hal.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	p.driving = true
	p.driven = level
	p.settled = false
	return nil
}

func (p *Pin) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	if p.driving {
		p.driving = false
		p.releasedAt = p.timer.Now()
	}
	return nil
}

// level returns the current input level and, while the capacitor is still
// travelling towards rest, the tick at which it will get there.
func (p *Pin) level(now hal.Tick) (hal.Level, hal.Tick, bool) {
	if p.driving {
		return p.driven, now, false
	}
	rest, ticks, ok := p.model.Transition(p.position)
	if p.settled {
		return rest, now, false
	}
	if !ok || rest == p.driven {
		return p.driven, now, false
	}
	if now.Since(p.releasedAt) >= ticks {
		p.settled = true
		return rest, now, false
	}
	return p.driven, p.releasedAt.Add(ticks), true
}

func (p *Pin) Read() (hal.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return hal.Low, err
	}
	level, _, _ := p.level(p.timer.Now())
	return level, nil
}

func (p *Pin) WaitFor(level hal.Level, deadline hal.Tick) (hal.Tick, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return 0, false, err
	}

	now := p.timer.Now()
	current, event, pending := p.level(now)
	if current == level {
		return now, true, nil
	}

	window := deadline.Since(now)
	if pending && event.Since(now) <= window {
		p.timer.settle(event)
		p.settled = true
		return event, true, nil
	}
	p.timer.settle(deadline)
	return deadline, false, nil
}

func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.enabled = false
	return nil
}

// Closed reports whether the pin has been released by its owner.
func (p *Pin) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
