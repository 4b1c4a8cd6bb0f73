// Package lut derives the tick lookup tables of a QADC from the physics of
// its RC network.
package lut

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

const (
	// DefaultTimerHz is the reference clock of the port timers.
	DefaultTimerHz = 100_000_000

	// MaxTicks is the largest transition time a 16 bit port timer can capture.
	MaxTicks = math.MaxUint16

	// MinResolution is the smallest table that still has both halves.
	MinResolution = 2

	phi = 1e-10
)

var (
	ErrTimerOverflow     = errors.New("RC constant exceeds the 16 bit timer range")
	ErrInvalidResolution = fmt.Errorf("resolution must be >= %d", MinResolution)
	ErrInvalidCircuit    = errors.New("invalid circuit")
)

// Direction is the way the pin travels towards the threshold after it has
// been released.
type Direction uint8

const (
	// Down means the pin rests low: it is driven high and falls back.
	Down Direction = 0
	// Up means the pin rests high: it is driven low and rises back.
	Up Direction = 1
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Circuit holds the passive components of a QADC channel and the voltages
// of the I/O rail.
type Circuit struct {
	// PotOhms is the nominal end to end resistance of the potentiometer or rheostat.
	PotOhms float64
	// CapacitorFarads should include the stray capacitance of the PCB.
	CapacitorFarads float64
	SeriesOhms      float64
	VRail           float64
	// VThresh is the input threshold, nominally 1.15V on a 3.3V rail.
	VThresh float64
}

func (c Circuit) Validate() error {
	switch {
	case c.PotOhms <= 0:
		return fmt.Errorf("%w: resistance must be > 0", ErrInvalidCircuit)
	case c.CapacitorFarads <= 0:
		return fmt.Errorf("%w: capacitor must be > 0", ErrInvalidCircuit)
	case c.SeriesOhms <= 0:
		return fmt.Errorf("%w: series resistor must be > 0", ErrInvalidCircuit)
	case c.VRail <= 0:
		return fmt.Errorf("%w: rail voltage must be > 0", ErrInvalidCircuit)
	case c.VThresh <= 0 || c.VThresh >= c.VRail:
		return fmt.Errorf("%w: threshold voltage must be within (0, %.2f)", ErrInvalidCircuit, c.VRail)
	}
	return nil
}

// ChargeTicks is the time the pin is driven before a conversion so that
// the capacitor reaches a known state: five time constants of the series
// resistor, at least one tick.
func (c Circuit) ChargeTicks(timerHz uint32) uint32 {
	ticks := uint32(math.Ceil(5 * c.SeriesOhms * c.CapacitorFarads * float64(timerHz)))
	if ticks < 1 {
		return 1
	}
	return ticks
}

// Table is the lookup table of a potentiometer QADC. Up holds the rise
// times for positions above the crossover index, Down the fall times for
// the positions below it. Slots belonging to the other half are 0.
type Table struct {
	Up      []uint16 `json:"up" yaml:"up"`
	Down    []uint16 `json:"down" yaml:"down"`
	MaxUp   uint32   `json:"maxUp" yaml:"maxUp"`
	MaxDown uint32   `json:"maxDown" yaml:"maxDown"`
	// Crossover is the first index whose nominal voltage is above the threshold.
	Crossover int `json:"crossover" yaml:"crossover"`
}

// Size returns the number of positions of the table.
func (t *Table) Size() int {
	return len(t.Up)
}

// Max returns the largest tick count of the given half.
func (t *Table) Max(dir Direction) uint32 {
	if dir == Up {
		return t.MaxUp
	}
	return t.MaxDown
}

// GeneratePot computes the lookup table of a potentiometer wired between
// the rails with its wiper on the pin, for resolution equally spaced
// positions. Storage for the two halves is allocated.
func GeneratePot(resolution int, c Circuit, timerHz uint32) (*Table, error) {
	t := &Table{
		Up:   make([]uint16, resolution),
		Down: make([]uint16, resolution),
	}
	return t, GeneratePotInto(t, c, timerHz)
}

// GeneratePotInto fills the preallocated halves of t, which must have the
// same length.
func GeneratePotInto(t *Table, c Circuit, timerHz uint32) error {
	n := len(t.Up)
	if n < MinResolution || len(t.Down) != n {
		return ErrInvalidResolution
	}
	if err := c.Validate(); err != nil {
		return err
	}

	rPot := float32(c.PotOhms)
	rs := float32(c.SeriesOhms)
	capacitor := float32(c.CapacitorFarads)
	vRail := float32(c.VRail)
	vThresh := float32(c.VThresh)
	hz := float32(timerHz)
	last := float32(n - 1)

	t.MaxUp = 0
	t.MaxDown = 0
	t.Crossover = 0

	for i := 0; i < n; i++ {
		pos := float32(i)

		// the wiper splits the pot into two resistors
		rLow := rPot * (pos + phi) / last
		rHigh := rPot * ((last - pos) + phi) / last
		rParallel := 1 / (1/rLow + 1/rHigh)

		// driving through the series resistor from either rail
		rpLow := 1 / (1/rLow + 1/rs)
		rpHigh := 1 / (1/rHigh + 1/rs)

		vChargeHigh := rLow / (rLow + rpHigh) * vRail
		vChargeLow := rpLow / (rpLow + rHigh) * vRail

		vPot := pos/last*vRail + phi

		if vPot > vThresh {
			ticks := toTicks(transient(rParallel, capacitor, vThresh-vChargeLow, vPot-vChargeLow), hz)
			t.Up[i] = ticks
			t.Down[i] = 0
			if uint32(ticks) > t.MaxUp {
				t.MaxUp = uint32(ticks)
			}
			if t.Crossover == 0 {
				t.Crossover = i
			}
		} else {
			ticks := toTicks(transient(rParallel, capacitor, vChargeHigh-vThresh, vChargeHigh-vPot), hz)
			t.Down[i] = ticks
			t.Up[i] = 0
			if uint32(ticks) > t.MaxDown {
				t.MaxDown = uint32(ticks)
			}
		}
	}

	if t.MaxUp >= MaxTicks || t.MaxDown >= MaxTicks {
		return fmt.Errorf("%w: max up %d, max down %d", ErrTimerOverflow, t.MaxUp, t.MaxDown)
	}
	return nil
}

// transient returns the time an RC node needs to travel delta volts on its
// way towards a target deltaTarget volts away.
func transient(r, c, delta, deltaTarget float32) float32 {
	if deltaTarget <= 0 {
		return 0
	}
	logval := 1 - delta/deltaTarget
	if logval <= 0 {
		return 0
	}
	return -r * c * math32.Log(logval)
}

// toTicks converts seconds to timer ticks. Values beyond the timer range
// saturate so that the overflow check still sees them.
func toTicks(seconds float32, hz float32) uint16 {
	ticks := seconds * hz
	if math32.IsNaN(ticks) || ticks < 0 {
		return 0
	}
	if ticks >= MaxTicks || math32.IsInf(ticks, 1) {
		return MaxTicks
	}
	return uint16(ticks)
}

// RheoMaxTicks returns the discharge time of a rheostat QADC at its full
// scale resistance.
func RheoMaxTicks(c Circuit, timerHz uint32) (uint16, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	vCharge := c.PotOhms / (c.PotOhms + c.SeriesOhms) * c.VRail
	if vCharge <= c.VThresh {
		return 0, fmt.Errorf("%w: charge voltage %.2fV never exceeds the threshold", ErrInvalidCircuit, vCharge)
	}
	seconds := c.PotOhms * c.CapacitorFarads * math.Log(vCharge/c.VThresh)
	ticks := seconds * float64(timerHz)
	if ticks >= MaxTicks {
		return 0, fmt.Errorf("%w: max discharge %d", ErrTimerOverflow, uint64(ticks))
	}
	return uint16(ticks), nil
}
