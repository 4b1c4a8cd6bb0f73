package qadc

// seedFilter fills the whole history of a channel with value and publishes it.
func (c *core) seedFilter(ch int, value uint16) {
	history := c.history(ch)
	for i := range history {
		history[i] = value
	}
	c.arena.writeIdx[ch] = 0
	c.arena.hysteresis[ch] = value
	c.arena.results[ch] = value
}

func (c *core) history(ch int) []uint16 {
	start := ch * c.filterDepth
	return c.arena.history[start : start+c.filterDepth]
}

// filter appends raw to the moving average of the channel and returns the
// truncated mean of the window.
func (c *core) filter(ch int, raw uint16) uint16 {
	history := c.history(ch)
	idx := c.arena.writeIdx[ch]
	history[idx] = raw
	idx++
	if int(idx) >= c.filterDepth {
		idx = 0
	}
	c.arena.writeIdx[ch] = idx

	var sum uint32
	for _, v := range history {
		sum += uint32(v)
	}
	return uint16(sum / uint32(c.filterDepth))
}

// publish applies the dead zone around the last published value and
// returns the (possibly unchanged) result.
func (c *core) publish(ch int, value uint16) uint16 {
	last := c.arena.hysteresis[ch]
	var delta uint16
	if value > last {
		delta = value - last
	} else {
		delta = last - value
	}
	if delta > c.hysteresis {
		c.arena.hysteresis[ch] = value
		c.arena.results[ch] = value
	}
	return c.arena.results[ch]
}

// process runs a raw reading through the post processing pipeline.
func (c *core) process(ch int, raw uint16) uint16 {
	return c.publish(ch, c.filter(ch, raw))
}

// Result returns the last published result of a channel.
func (c *core) Result(ch int) uint16 {
	return c.arena.results[ch]
}

// Results returns a copy of all published results.
func (c *core) Results() []uint16 {
	result := make([]uint16, c.numChannels)
	copy(result, c.arena.results)
	return result
}
