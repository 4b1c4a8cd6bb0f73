package qadc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_SeededAverage(t *testing.T) {
	// GIVEN
	depth := 8
	pot, _ := newTestPot(t, referenceConfig(), []float64{indexPosition(17)}, WithFilterDepth(depth))
	v := pot.Result(0)

	// WHEN
	for i := 0; i < depth; i++ {
		pot.process(0, v)
	}

	// THEN
	assert.Equal(t, uint16(17), v)
	assert.Equal(t, v, pot.Result(0))
}

func TestFilter_TruncatingMean(t *testing.T) {
	// GIVEN
	pot, _ := newTestPot(t, referenceConfig(), []float64{0}, WithFilterDepth(4), WithHysteresis(0))
	pot.seedFilter(0, 0)

	// WHEN
	values := []uint16{10, 10, 10, 9}
	var result uint16
	for _, v := range values {
		result = pot.process(0, v)
	}

	// THEN
	// (10+10+10+9)/4 = 9.75
	assert.Equal(t, uint16(9), result)
}

func TestFilter_RingBufferWraps(t *testing.T) {
	// GIVEN
	pot, _ := newTestPot(t, referenceConfig(), []float64{0}, WithFilterDepth(3), WithHysteresis(0))
	pot.seedFilter(0, 0)

	// WHEN
	for _, v := range []uint16{30, 30, 30, 60, 60, 60} {
		pot.process(0, v)
	}

	// THEN
	assert.Equal(t, uint16(60), pot.Result(0))
	assert.Equal(t, uint16(0), pot.arena.writeIdx[0])
}

func TestHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		hysteresis uint16
		seed       uint16
		raw        uint16
		expected   uint16
	}{
		{name: "within dead zone above", hysteresis: 2, seed: 100, raw: 102, expected: 100},
		{name: "within dead zone below", hysteresis: 2, seed: 100, raw: 98, expected: 100},
		{name: "beyond dead zone above", hysteresis: 2, seed: 100, raw: 103, expected: 103},
		{name: "beyond dead zone below", hysteresis: 2, seed: 100, raw: 97, expected: 97},
		{name: "no dead zone", hysteresis: 0, seed: 100, raw: 101, expected: 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN
			pot, _ := newTestPot(t, referenceConfig(), []float64{0}, WithFilterDepth(1), WithHysteresis(tt.hysteresis))
			pot.seedFilter(0, tt.seed)

			// WHEN
			result := pot.process(0, tt.raw)

			// THEN
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, tt.expected, pot.Result(0))
		})
	}
}

func TestHysteresis_Idempotent(t *testing.T) {
	// GIVEN
	pot, _ := newTestPot(t, referenceConfig(), []float64{0}, WithFilterDepth(4), WithHysteresis(1))
	pot.seedFilter(0, 500)
	for i := 0; i < 4; i++ {
		pot.process(0, 520)
	}
	settled := pot.Result(0)

	// WHEN
	for i := 0; i < 100; i++ {
		pot.process(0, 520)

		// THEN
		assert.Equal(t, settled, pot.Result(0))
	}
	assert.Equal(t, uint16(520), settled)
}
