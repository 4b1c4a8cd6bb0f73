package qadc

import (
	"testing"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/hal/sim"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/stretchr/testify/require"
)

const testResolution = 64

// 47k pot, 5nF, 330R series
var referenceCircuit = lut.Circuit{
	PotOhms:         47000,
	CapacitorFarads: 5000e-12,
	SeriesOhms:      330,
	VRail:           3.3,
	VThresh:         1.15,
}

func indexPosition(idx int) float64 {
	return float64(idx) / float64(testResolution-1)
}

func newSimPins(t *testing.T, model sim.Model, positions ...float64) (*sim.Timer, []hal.Pin) {
	t.Helper()
	timer := sim.NewTimer(lut.DefaultTimerHz)
	pins := sim.NewPins(timer, model, positions...)
	require.NoError(t, hal.PreInit(timer, pins))
	return timer, pins
}

func newTestPot(t *testing.T, cfg Config, positions []float64, options ...Option) (*Pot, []hal.Pin) {
	t.Helper()
	model, err := sim.NewPotModel(referenceCircuit, testResolution, lut.DefaultTimerHz)
	require.NoError(t, err)
	timer, pins := newSimPins(t, model, positions...)

	options = append([]Option{WithResolution(testResolution)}, options...)
	pot, err := NewPot(pins, timer, cfg, options...)
	require.NoError(t, err)
	return pot, pins
}

func referenceConfig() Config {
	return Config{Circuit: referenceCircuit}
}
