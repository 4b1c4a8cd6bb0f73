package qadc

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/lut"
)

// Pot is a set of potentiometer channels, each one a pot between the rails
// with its wiper on a pin, a series resistor and a capacitor to ground.
// A single lookup table is shared by all channels.
type Pot struct {
	*core
	table lut.Table
}

// NewPot generates the lookup table, lays out the state and seeds every
// channel with a first conversion. Invalid configurations, including RC
// constants beyond the timer range or an interval too short to convert a
// channel in, are rejected.
func NewPot(pins []hal.Pin, timer hal.Timer, cfg Config, options ...Option) (*Pot, error) {
	s := newSettings(options)
	c, err := newCore(pins, timer, cfg, s)
	if err != nil {
		return nil, err
	}

	c.arena, err = newPotArena(s.buffer, c.numChannels, s.resolution, s.filterDepth)
	if err != nil {
		return nil, err
	}

	p := &Pot{
		core: c,
		table: lut.Table{
			Up:   c.arena.lutUp,
			Down: c.arena.lutDown,
		},
	}
	if err := lut.GeneratePotInto(&p.table, cfg.Circuit, cfg.timerHz()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	c.maxLut[lut.Up] = p.table.MaxUp
	c.maxLut[lut.Down] = p.table.MaxDown

	if err := c.checkInterval(); err != nil {
		return nil, err
	}

	c.resetCalibration()
	c.seed(func(ch int) (Reading, error) {
		return p.convert(ch, lut.MaxTicks, false)
	})
	return p, nil
}

// Table returns the lookup table of this instance. It must not be modified.
func (p *Pot) Table() *lut.Table {
	return &p.table
}

// Direction returns the direction of the last transition of a channel.
func (p *Pot) Direction(ch int) (lut.Direction, error) {
	if err := p.checkChannel(ch); err != nil {
		return lut.Down, err
	}
	return lut.Direction(p.arena.restLevel[ch]), nil
}

// Single performs one blocking conversion and returns the raw position
// without filtering. Auto scale is not applied. Must not be called while
// a scheduler is running on this instance.
func (p *Pot) Single(ch int) (uint16, error) {
	if err := p.checkChannel(ch); err != nil {
		return 0, err
	}
	reading, err := p.convert(ch, lut.MaxTicks, false)
	if err != nil {
		return 0, err
	}
	return reading.Position, nil
}

// Update performs one conversion on a channel, waiting at most timeout
// ticks for the transition, and feeds it through calibration and post
// processing. Nothing is published while calibrating.
func (p *Pot) Update(ch int, timeout uint32) (Reading, error) {
	if err := p.checkChannel(ch); err != nil {
		return Reading{}, err
	}
	reading, err := p.convert(ch, timeout, true)
	if err != nil {
		return reading, err
	}
	if !p.calibrating {
		p.process(ch, reading.Position)
	}
	return reading, nil
}

func (p *Pot) convert(ch int, timeout uint32, track bool) (Reading, error) {
	rest, err := p.pins[ch].Read()
	if err != nil {
		return Reading{}, fmt.Errorf("channel %d: read: %w", ch, err)
	}
	dir := lut.Down
	if rest == hal.High {
		dir = lut.Up
	}
	p.arena.restLevel[ch] = uint16(dir)

	ticks, err := p.transition(ch, rest, timeout)
	if err != nil {
		return Reading{Direction: dir}, err
	}
	if track {
		p.observe(ch, dir, ticks)
	}
	return Reading{
		Ticks:     ticks,
		Direction: dir,
		Position:  p.resolve(ch, dir, ticks),
	}, nil
}

func (p *Pot) resolve(ch int, dir lut.Direction, ticks uint32) uint16 {
	effective := p.Scale(ch, dir).Unscale(ticks)
	return uint16(p.table.Search(dir, effective))
}
