package qadc

import (
	"fmt"

	"github.com/markusressel/qadc2go/internal/fixed"
	"github.com/markusressel/qadc2go/internal/lut"
)

// PotStateSize returns the number of uint16 words of state a potentiometer
// instance needs: results, resting levels, filter history, hysteresis
// trackers, max seen ticks and scale per direction, both LUT halves and
// the filter write indices.
func PotStateSize(numChannels int, lutSize int, filterDepth int) int {
	return numChannels + // results
		numChannels + // resting level
		numChannels*filterDepth + // filter history
		numChannels + // hysteresis tracker
		numChannels*2 + // max seen ticks up/down
		numChannels*2 + // scale up/down
		lutSize*2 + // LUT up/down
		numChannels // filter write index
}

// RheoStateSize returns the number of uint16 words of state a rheostat
// instance needs.
func RheoStateSize(numChannels int, filterDepth int) int {
	return numChannels + // results
		numChannels*filterDepth + // filter history
		numChannels + // hysteresis tracker
		numChannels + // max seen ticks
		numChannels + // scale
		numChannels // filter write index
}

// arena is a single contiguous buffer carved into typed regions once at
// init. Nothing is allocated afterwards.
type arena struct {
	buf []uint16

	results    []uint16
	restLevel  []uint16
	history    []uint16
	hysteresis []uint16
	maxSeen    [2][]uint16
	scale      [2][]uint16
	writeIdx   []uint16
	lutUp      []uint16
	lutDown    []uint16
}

type carver struct {
	buf []uint16
}

func (c *carver) take(n int) []uint16 {
	region := c.buf[:n:n]
	c.buf = c.buf[n:]
	return region
}

func prepareBuffer(buffer []uint16, size int) ([]uint16, error) {
	if buffer == nil {
		return make([]uint16, size), nil
	}
	if len(buffer) != size {
		return nil, fmt.Errorf("%w: state buffer holds %d words, %d required", ErrConfig, len(buffer), size)
	}
	clear(buffer)
	return buffer, nil
}

func newPotArena(buffer []uint16, numChannels int, lutSize int, filterDepth int) (*arena, error) {
	buf, err := prepareBuffer(buffer, PotStateSize(numChannels, lutSize, filterDepth))
	if err != nil {
		return nil, err
	}
	c := &carver{buf: buf}
	a := &arena{buf: buf}
	a.results = c.take(numChannels)
	a.restLevel = c.take(numChannels)
	a.history = c.take(numChannels * filterDepth)
	a.hysteresis = c.take(numChannels)
	a.maxSeen[lut.Up] = c.take(numChannels)
	a.maxSeen[lut.Down] = c.take(numChannels)
	a.scale[lut.Up] = c.take(numChannels)
	a.scale[lut.Down] = c.take(numChannels)
	a.lutUp = c.take(lutSize)
	a.lutDown = c.take(lutSize)
	a.writeIdx = c.take(numChannels)
	return a, nil
}

func newRheoArena(buffer []uint16, numChannels int, filterDepth int) (*arena, error) {
	buf, err := prepareBuffer(buffer, RheoStateSize(numChannels, filterDepth))
	if err != nil {
		return nil, err
	}
	c := &carver{buf: buf}
	a := &arena{buf: buf}
	a.results = c.take(numChannels)
	a.history = c.take(numChannels * filterDepth)
	a.hysteresis = c.take(numChannels)
	a.maxSeen[lut.Down] = c.take(numChannels)
	a.scale[lut.Down] = c.take(numChannels)
	a.writeIdx = c.take(numChannels)
	return a, nil
}

func (a *arena) getScale(ch int, dir lut.Direction) fixed.Q3_13 {
	return fixed.Q3_13(a.scale[dir][ch])
}

func (a *arena) setScale(ch int, dir lut.Direction, q fixed.Q3_13) {
	a.scale[dir][ch] = uint16(q)
}
