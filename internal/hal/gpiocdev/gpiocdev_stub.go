//go:build !linux

package gpiocdev

import (
	"errors"

	"github.com/markusressel/qadc2go/internal/hal"
)

var ErrUnsupported = errors.New("gpio character devices are only available on linux")

type Timer struct {
	hz uint32
}

func NewTimer(hz uint32) *Timer {
	return &Timer{hz: hz}
}

func (t *Timer) Acquire() error {
	return ErrUnsupported
}

func (t *Timer) Hz() uint32 {
	return t.hz
}

func (t *Timer) Now() hal.Tick {
	return 0
}

func (t *Timer) WaitUntil(hal.Tick) {}

type Chip struct{}

func Open(string) (*Chip, error) {
	return nil, ErrUnsupported
}

func (c *Chip) Close() error {
	return nil
}

func (c *Chip) Pins(*Timer, ...int) []hal.Pin {
	return nil
}
