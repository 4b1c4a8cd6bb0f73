package sim

import (
	"math"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/lut"
)

// Model maps a mechanical position in [0, 1] to the resting level of the
// pin and the time it takes to return there after being driven to the
// opposite level. ok is false if the pin never returns.
type Model interface {
	Transition(position float64) (rest hal.Level, ticks uint32, ok bool)
}

// PotModel simulates a potentiometer QADC from a lookup table computed for
// the actual (not necessarily nominal) components.
type PotModel struct {
	table *lut.Table
}

func NewPotModel(circuit lut.Circuit, resolution int, timerHz uint32) (*PotModel, error) {
	table, err := lut.GeneratePot(resolution, circuit, timerHz)
	if err != nil {
		return nil, err
	}
	return &PotModel{table: table}, nil
}

func (m *PotModel) Transition(position float64) (hal.Level, uint32, bool) {
	idx := positionIndex(position, m.table.Size())
	if idx >= m.table.Crossover {
		return hal.High, uint32(m.table.Up[idx]), true
	}
	return hal.Low, uint32(m.table.Down[idx]), true
}

// RheoModel simulates a rheostat QADC.
type RheoModel struct {
	circuit lut.Circuit
	hz      float64
}

func NewRheoModel(circuit lut.Circuit, timerHz uint32) (*RheoModel, error) {
	if err := circuit.Validate(); err != nil {
		return nil, err
	}
	return &RheoModel{circuit: circuit, hz: float64(timerHz)}, nil
}

func (m *RheoModel) Transition(position float64) (hal.Level, uint32, bool) {
	c := m.circuit
	r := clampPosition(position) * c.PotOhms
	vCharge := r / (r + c.SeriesOhms) * c.VRail
	if vCharge <= c.VThresh {
		// never charged above the threshold, reads low right away
		return hal.Low, 0, true
	}
	ticks := r * c.CapacitorFarads * math.Log(vCharge/c.VThresh) * m.hz
	return hal.Low, uint32(min(ticks, math.MaxUint32)), true
}

// FixedModel always reports the same transition, independent of position.
type FixedModel struct {
	Rest  hal.Level
	Ticks uint32
}

func (m FixedModel) Transition(float64) (hal.Level, uint32, bool) {
	return m.Rest, m.Ticks, true
}

// DisconnectedModel never transitions, like a pin with nothing attached
// that keeps whatever charge it was driven to.
type DisconnectedModel struct{}

func (DisconnectedModel) Transition(float64) (hal.Level, uint32, bool) {
	return hal.Low, 0, false
}

func clampPosition(position float64) float64 {
	return math.Max(0, math.Min(1, position))
}

func positionIndex(position float64, size int) int {
	return int(math.Round(clampPosition(position) * float64(size-1)))
}
