package qadc

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/lut"
)

// Rheo is a set of rheostat channels: a variable resistor from the pin to
// ground in parallel with the capacitor, charged through the series
// resistor. The discharge time is quantized linearly into steps.
type Rheo struct {
	*core
	maxDischargeTicks uint32
}

// NewRheo validates the RC constants, lays out the state and seeds every
// channel with a first conversion.
func NewRheo(pins []hal.Pin, timer hal.Timer, cfg Config, options ...Option) (*Rheo, error) {
	s := newSettings(options)
	c, err := newCore(pins, timer, cfg, s)
	if err != nil {
		return nil, err
	}

	c.arena, err = newRheoArena(s.buffer, c.numChannels, s.filterDepth)
	if err != nil {
		return nil, err
	}

	maxTicks, err := lut.RheoMaxTicks(cfg.Circuit, cfg.timerHz())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if maxTicks == 0 {
		return nil, fmt.Errorf("%w: full scale discharge time rounds to 0 ticks", ErrConfig)
	}
	c.maxLut[lut.Down] = uint32(maxTicks)

	if err := c.checkInterval(); err != nil {
		return nil, err
	}

	r := &Rheo{
		core:              c,
		maxDischargeTicks: uint32(maxTicks),
	}
	c.resetCalibration()
	c.seed(func(ch int) (Reading, error) {
		return r.convert(ch, lut.MaxTicks, false)
	})
	return r, nil
}

// MaxDischargeTicks returns the nominal full scale discharge time.
func (r *Rheo) MaxDischargeTicks() uint32 {
	return r.maxDischargeTicks
}

// Direction is not defined for rheostats.
func (r *Rheo) Direction(ch int) (lut.Direction, error) {
	return lut.Down, ErrNoDirection
}

// Single performs one blocking conversion and returns the raw position
// without filtering. Auto scale is not applied.
func (r *Rheo) Single(ch int) (uint16, error) {
	if err := r.checkChannel(ch); err != nil {
		return 0, err
	}
	reading, err := r.convert(ch, lut.MaxTicks, false)
	if err != nil {
		return 0, err
	}
	return reading.Position, nil
}

// Update performs one conversion on a channel and feeds it through
// calibration and post processing.
func (r *Rheo) Update(ch int, timeout uint32) (Reading, error) {
	if err := r.checkChannel(ch); err != nil {
		return Reading{}, err
	}
	reading, err := r.convert(ch, timeout, true)
	if err != nil {
		return reading, err
	}
	if !r.calibrating {
		r.process(ch, reading.Position)
	}
	return reading, nil
}

func (r *Rheo) convert(ch int, timeout uint32, track bool) (Reading, error) {
	ticks, err := r.transition(ch, hal.Low, timeout)
	if err != nil {
		return Reading{Direction: lut.Down}, err
	}
	if track {
		r.observe(ch, lut.Down, ticks)
	}
	return Reading{
		Ticks:     ticks,
		Direction: lut.Down,
		Position:  r.resolve(ch, ticks),
	}, nil
}

func (r *Rheo) resolve(ch int, ticks uint32) uint16 {
	effective := uint64(r.Scale(ch, lut.Down).Unscale(ticks))
	last := uint64(r.resolution - 1)
	position := effective * last / uint64(r.maxDischargeTicks)
	return uint16(min(position, last))
}
