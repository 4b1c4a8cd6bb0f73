package lut

// Search maps a (descaled) transition time back to a position index.
//
// Each half is scanned in the direction of increasing tick values, Down
// from index 0 towards the crossover and Up from the last index towards it,
// and the first entry >= ticks wins. Flat regions therefore resolve to the
// outermost position. Times beyond the maximum of the half clamp to the
// position next to the crossover.
func (t *Table) Search(dir Direction, ticks uint32) int {
	n := len(t.Up)
	if n == 0 {
		return 0
	}
	if dir == Up {
		for i := n - 1; i >= t.Crossover; i-- {
			if uint32(t.Up[i]) >= ticks {
				return i
			}
		}
		return clamp(t.Crossover, n)
	}

	for i := 0; i < t.Crossover; i++ {
		if uint32(t.Down[i]) >= ticks {
			return i
		}
	}
	return clamp(t.Crossover-1, n)
}

func clamp(idx int, n int) int {
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}
