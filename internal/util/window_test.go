package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetWindowMax(t *testing.T) {
	// GIVEN
	window := CreateRollingWindow(3)
	window.Append(1)
	window.Append(2)
	window.Append(3)

	// WHEN
	maximum := GetWindowMax(window)

	// THEN
	assert.Equal(t, 3.0, maximum)
}

func TestGetWindowMax_OldValuesRollOut(t *testing.T) {
	// GIVEN
	window := CreateRollingWindow(2)
	window.Append(10)
	window.Append(1)
	window.Append(2)

	// WHEN
	maximum := GetWindowMax(window)

	// THEN
	assert.Equal(t, 2.0, maximum)
}

func TestFillWindow(t *testing.T) {
	// GIVEN
	window := CreateRollingWindow(4)
	window.Append(100)

	// WHEN
	FillWindow(window, 4, 5)

	// THEN
	assert.Equal(t, 5.0, GetWindowMax(window))
}
