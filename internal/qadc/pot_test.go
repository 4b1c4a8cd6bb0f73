package qadc

import (
	"testing"

	"github.com/markusressel/qadc2go/internal/hal"
	"github.com/markusressel/qadc2go/internal/hal/sim"
	"github.com/markusressel/qadc2go/internal/lut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPot_SingleRoundTrip(t *testing.T) {
	// GIVEN
	indices := []int{3, 10, 21, 22, 40, 60}
	positions := make([]float64, len(indices))
	for i, idx := range indices {
		positions[i] = indexPosition(idx)
	}
	pot, _ := newTestPot(t, referenceConfig(), positions)

	for ch, idx := range indices {
		// WHEN
		result, err := pot.Single(ch)

		// THEN
		require.NoError(t, err)
		assert.Equal(t, uint16(idx), result, "channel %d", ch)
	}
}

func TestPot_Direction(t *testing.T) {
	// GIVEN
	pot, _ := newTestPot(t, referenceConfig(), []float64{0.1, 0.9})
	crossover := pot.Table().Crossover

	// WHEN
	_, err := pot.Single(0)
	require.NoError(t, err)
	_, err = pot.Single(1)
	require.NoError(t, err)

	// THEN
	dir, err := pot.Direction(0)
	require.NoError(t, err)
	assert.Equal(t, lut.Down, dir)
	dir, err = pot.Direction(1)
	require.NoError(t, err)
	assert.Equal(t, lut.Up, dir)

	assert.Less(t, int(pot.Result(0)), crossover)
	assert.GreaterOrEqual(t, int(pot.Result(1)), crossover)
}

func TestPot_FollowsKnob(t *testing.T) {
	// GIVEN
	pot, pins := newTestPot(t, referenceConfig(), []float64{indexPosition(5)}, WithFilterDepth(1))
	knob := pins[0].(*sim.Pin)

	// WHEN
	knob.SetPosition(indexPosition(50))
	reading, err := pot.Update(0, lut.MaxTicks)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, uint16(50), reading.Position)
	assert.Equal(t, lut.Up, reading.Direction)
	assert.Equal(t, uint32(pot.Table().Up[50]), reading.Ticks)
	assert.Equal(t, uint16(50), pot.Result(0))
}

func TestPot_PortTimeOffset(t *testing.T) {
	// GIVEN
	cfg := referenceConfig()
	cfg.PortTimeOffsetTicks = 100
	pot, _ := newTestPot(t, cfg, []float64{indexPosition(30)})

	// WHEN
	reading, err := pot.Update(0, lut.MaxTicks)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, uint32(pot.Table().Up[30])-100, reading.Ticks)
}

func TestPot_TransitionTimeout(t *testing.T) {
	// GIVEN
	timer, pins := newSimPins(t, sim.DisconnectedModel{}, 0.5)

	// WHEN
	pot, err := NewPot(pins, timer, referenceConfig(), WithResolution(testResolution))

	// THEN
	require.NoError(t, err)
	// a failed seed conversion seeds with 0
	assert.Equal(t, uint16(0), pot.Result(0))

	_, err = pot.Single(0)
	assert.ErrorIs(t, err, ErrTransitionTimeout)

	_, err = pot.Update(0, 1000)
	assert.ErrorIs(t, err, ErrTransitionTimeout)
	assert.Equal(t, uint16(0), pot.Result(0))
}

func TestPot_ChannelOutOfRange(t *testing.T) {
	// GIVEN
	pot, _ := newTestPot(t, referenceConfig(), []float64{0.5})

	// WHEN
	_, errSingle := pot.Single(1)
	_, errUpdate := pot.Update(-1, lut.MaxTicks)
	_, errDir := pot.Direction(2)

	// THEN
	assert.ErrorIs(t, errSingle, ErrChannel)
	assert.ErrorIs(t, errUpdate, ErrChannel)
	assert.ErrorIs(t, errDir, ErrChannel)
}

func TestNewPot_InvalidConfig(t *testing.T) {
	model, err := sim.NewPotModel(referenceCircuit, testResolution, lut.DefaultTimerHz)
	require.NoError(t, err)

	slowCircuit := referenceCircuit
	slowCircuit.CapacitorFarads = 100e-9

	tests := []struct {
		name    string
		pins    int
		cfg     Config
		options []Option
		err     error
	}{
		{
			name: "no pins",
			pins: 0,
			cfg:  referenceConfig(),
			err:  ErrConfig,
		},
		{
			name:    "resolution too small",
			pins:    1,
			cfg:     referenceConfig(),
			options: []Option{WithResolution(1)},
			err:     ErrConfig,
		},
		{
			name:    "filter depth zero",
			pins:    1,
			cfg:     referenceConfig(),
			options: []Option{WithFilterDepth(0)},
			err:     ErrConfig,
		},
		{
			name: "invalid circuit",
			pins: 1,
			cfg:  Config{Circuit: lut.Circuit{PotOhms: 47000}},
			err:  ErrConfig,
		},
		{
			name: "timer overflow",
			pins: 1,
			cfg:  Config{Circuit: slowCircuit},
			err:  lut.ErrTimerOverflow,
		},
		{
			name: "interval too short",
			pins: 1,
			cfg:  Config{Circuit: referenceCircuit, ConvertIntervalTicks: 1000},
			err:  ErrIntervalTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN
			positions := make([]float64, tt.pins)
			timer, pins := sim.NewTimer(lut.DefaultTimerHz), []hal.Pin{}
			if tt.pins > 0 {
				timer, pins = newSimPins(t, model, positions...)
			}
			options := append([]Option{WithResolution(testResolution)}, tt.options...)

			// WHEN
			_, err := NewPot(pins, timer, tt.cfg, options...)

			// THEN
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewPot_IntervalLongEnough(t *testing.T) {
	// GIVEN
	table, err := lut.GeneratePot(testResolution, referenceCircuit, lut.DefaultTimerHz)
	require.NoError(t, err)
	cfg := referenceConfig()
	cfg.ConvertIntervalTicks = referenceCircuit.ChargeTicks(lut.DefaultTimerHz) + max(table.MaxUp, table.MaxDown)

	// WHEN
	model, err := sim.NewPotModel(referenceCircuit, testResolution, lut.DefaultTimerHz)
	require.NoError(t, err)
	timer, pins := newSimPins(t, model, 0.5)
	_, err = NewPot(pins, timer, cfg, WithResolution(testResolution))

	// THEN
	assert.NoError(t, err)
}
