package qadc

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/markusressel/qadc2go/internal/ui"
)

// Reading is the outcome of a single conversion.
type Reading struct {
	// Ticks is the measured transition time.
	Ticks uint32
	// Direction is the way the pin travelled back to its resting level.
	Direction lut.Direction
	// Position is the raw (unfiltered) result.
	Position uint16
}

// core is the state shared by both QADC variants. It is owned by exactly
// one goroutine, no locking is done.
type core struct {
	pins  []hal.Pin
	timer hal.Timer
	cfg   Config

	numChannels int
	resolution  int
	filterDepth int
	hysteresis  uint16

	arena       *arena
	calibrating bool

	chargeTicks uint32
	maxLut      [2]uint32
}

func newCore(pins []hal.Pin, timer hal.Timer, cfg Config, s settings) (*core, error) {
	if err := s.validate(len(pins)); err != nil {
		return nil, err
	}
	if timer == nil {
		return nil, fmt.Errorf("%w: no timer given", ErrConfig)
	}
	if err := cfg.Circuit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &core{
		pins:        pins,
		timer:       timer,
		cfg:         cfg,
		numChannels: len(pins),
		resolution:  s.resolution,
		filterDepth: s.filterDepth,
		hysteresis:  s.hysteresis,
		chargeTicks: cfg.Circuit.ChargeTicks(cfg.timerHz()),
	}, nil
}

func (c *core) NumChannels() int {
	return c.numChannels
}

// Resolution returns the number of distinct results, the full scale value
// being Resolution()-1.
func (c *core) Resolution() int {
	return c.resolution
}

func (c *core) Config() Config {
	return c.cfg
}

func (c *core) Timer() hal.Timer {
	return c.timer
}

func (c *core) ChargeTicks() uint32 {
	return c.chargeTicks
}

func (c *core) ConvertIntervalTicks() uint32 {
	return c.cfg.ConvertIntervalTicks
}

// Pins returns the pins owned by this instance.
func (c *core) Pins() []hal.Pin {
	return c.pins
}

// Close releases all pins.
func (c *core) Close() error {
	return hal.CloseAll(c.pins)
}

func (c *core) checkChannel(ch int) error {
	if ch < 0 || ch >= c.numChannels {
		return fmt.Errorf("%w: %d (have %d)", ErrChannel, ch, c.numChannels)
	}
	return nil
}

// checkInterval verifies that a conversion at the slowest nominal position
// fits into the configured interval.
func (c *core) checkInterval() error {
	interval := c.cfg.ConvertIntervalTicks
	if interval == 0 {
		return nil
	}
	required := c.chargeTicks + max(c.maxLut[lut.Up], c.maxLut[lut.Down])
	if interval < required {
		return fmt.Errorf("%w: %d ticks configured, at least %d required", ErrIntervalTooShort, interval, required)
	}
	return nil
}

// transition charges the pin to the level opposite of rest, releases it
// and measures how long it takes to return to rest.
func (c *core) transition(ch int, rest hal.Level, timeout uint32) (uint32, error) {
	pin := c.pins[ch]
	if err := pin.Drive(rest.Opposite()); err != nil {
		return 0, fmt.Errorf("channel %d: drive: %w", ch, err)
	}
	c.timer.WaitUntil(c.timer.Now().Add(c.chargeTicks))

	if err := pin.Release(); err != nil {
		return 0, fmt.Errorf("channel %d: release: %w", ch, err)
	}
	start := c.timer.Now()

	end, ok, err := pin.WaitFor(rest, start.Add(timeout))
	if err != nil {
		return 0, fmt.Errorf("channel %d: wait: %w", ch, err)
	}
	if !ok {
		return 0, fmt.Errorf("channel %d: %w after %d ticks", ch, ErrTransitionTimeout, timeout)
	}

	elapsed := end.Since(start)
	if elapsed > c.cfg.PortTimeOffsetTicks {
		elapsed -= c.cfg.PortTimeOffsetTicks
	} else {
		elapsed = 0
	}
	return min(elapsed, lut.MaxTicks), nil
}

// seed runs one conversion per channel and fills the filters with its
// result so that the moving average does not ramp up from zero.
func (c *core) seed(convert func(ch int) (Reading, error)) {
	for ch := 0; ch < c.numChannels; ch++ {
		var value uint16
		reading, err := convert(ch)
		if err != nil {
			ui.Warning("Unable to seed filter of channel %d: %v", ch, err)
		} else {
			value = reading.Position
		}
		c.seedFilter(ch, value)
	}
}
