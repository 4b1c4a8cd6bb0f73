package qadc

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/fixed"
	"github.com/markusressel/qadc2go/internal/lut"
)

// Calibration is a copy of the adaptive range of every channel.
type Calibration struct {
	Channels []ChannelCalibration `json:"channels"`
}

type ChannelCalibration struct {
	MaxSeenUp   uint16      `json:"maxSeenUp"`
	MaxSeenDown uint16      `json:"maxSeenDown"`
	ScaleUp     fixed.Q3_13 `json:"scaleUp"`
	ScaleDown   fixed.Q3_13 `json:"scaleDown"`
}

// directions returns the LUT halves in use by this instance
func (c *core) directions() []lut.Direction {
	if c.arena.maxSeen[lut.Up] == nil {
		return []lut.Direction{lut.Down}
	}
	return []lut.Direction{lut.Down, lut.Up}
}

// resetCalibration sets every scale to 1.0 and the observed extrema to the
// nominal maxima of the LUT.
func (c *core) resetCalibration() {
	for _, dir := range c.directions() {
		for ch := 0; ch < c.numChannels; ch++ {
			c.arena.maxSeen[dir][ch] = uint16(min(c.maxLut[dir], lut.MaxTicks))
			c.arena.setScale(ch, dir, fixed.One)
		}
	}
}

// Scale returns the current scale factor of a channel and direction.
func (c *core) Scale(ch int, dir lut.Direction) fixed.Q3_13 {
	if c.arena.scale[dir] == nil {
		return fixed.One
	}
	return c.arena.getScale(ch, dir)
}

// MaxSeen returns the largest transition time observed on a channel and
// direction in the current calibration session.
func (c *core) MaxSeen(ch int, dir lut.Direction) uint16 {
	if c.arena.maxSeen[dir] == nil {
		return 0
	}
	return c.arena.maxSeen[dir][ch]
}

// Calibrating reports whether a calibration session is active.
func (c *core) Calibrating() bool {
	return c.calibrating
}

// StartCalibration forgets the observed extrema of all channels. Until
// FinishCalibration is called conversions only track the extrema and
// publish nothing.
func (c *core) StartCalibration() {
	for _, dir := range c.directions() {
		clear(c.arena.maxSeen[dir])
	}
	c.calibrating = true
}

// FinishCalibration derives the scale factors from the extrema observed
// since StartCalibration. A direction that saw no transition keeps its
// previous scale.
func (c *core) FinishCalibration() Calibration {
	for _, dir := range c.directions() {
		for ch := 0; ch < c.numChannels; ch++ {
			seen := c.arena.maxSeen[dir][ch]
			if seen == 0 {
				c.arena.maxSeen[dir][ch] = uint16(min(c.arena.getScale(ch, dir).Scale(c.maxLut[dir]), lut.MaxTicks))
				continue
			}
			c.arena.setScale(ch, dir, fixed.Ratio(uint32(seen), c.maxLut[dir]))
		}
	}
	c.calibrating = false
	return c.Calibration()
}

// Calibration returns a copy of the current calibration state.
func (c *core) Calibration() Calibration {
	result := Calibration{Channels: make([]ChannelCalibration, c.numChannels)}
	for ch := 0; ch < c.numChannels; ch++ {
		result.Channels[ch] = ChannelCalibration{
			MaxSeenUp:   c.MaxSeen(ch, lut.Up),
			MaxSeenDown: c.MaxSeen(ch, lut.Down),
			ScaleUp:     c.Scale(ch, lut.Up),
			ScaleDown:   c.Scale(ch, lut.Down),
		}
	}
	return result
}

// RestoreCalibration re-initializes the scale factors from a previously
// saved calibration.
func (c *core) RestoreCalibration(calibration Calibration) error {
	if len(calibration.Channels) != c.numChannels {
		return fmt.Errorf("%w: calibration covers %d channels, instance has %d", ErrConfig, len(calibration.Channels), c.numChannels)
	}
	for ch, channel := range calibration.Channels {
		for _, dir := range c.directions() {
			scale, seen := channel.ScaleDown, channel.MaxSeenDown
			if dir == lut.Up {
				scale, seen = channel.ScaleUp, channel.MaxSeenUp
			}
			if scale == 0 {
				return fmt.Errorf("%w: channel %d has a zero %s scale", ErrConfig, ch, dir)
			}
			c.arena.setScale(ch, dir, scale)
			c.arena.maxSeen[dir][ch] = seen
		}
	}
	return nil
}

// observe feeds a raw transition time into the calibration state. While
// calibrating only the extrema are tracked. With auto scale enabled a new
// extreme immediately stretches the scale, which never shrinks.
func (c *core) observe(ch int, dir lut.Direction, ticks uint32) {
	seen := c.arena.maxSeen[dir]
	if ticks <= uint32(seen[ch]) {
		return
	}
	if c.calibrating {
		seen[ch] = uint16(ticks)
		return
	}
	if !c.cfg.AutoScale {
		return
	}
	seen[ch] = uint16(ticks)
	scale := fixed.Ratio(ticks, c.maxLut[dir])
	if scale > c.arena.getScale(ch, dir) {
		c.arena.setScale(ch, dir, scale)
	}
}
