package util

import "github.com/asecurityteam/rolling"

// CreateRollingWindow returns a window holding the last size points.
func CreateRollingWindow(size int) *rolling.PointPolicy {
	return rolling.NewPointPolicy(rolling.NewWindow(size))
}

// FillWindow appends value size times, replacing the whole content.
func FillWindow(window *rolling.PointPolicy, size int, value float64) {
	for i := 0; i < size; i++ {
		window.Append(value)
	}
}

// GetWindowMax returns the largest value in the window.
func GetWindowMax(window *rolling.PointPolicy) float64 {
	return window.Reduce(rolling.Max)
}
