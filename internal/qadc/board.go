package qadc

import "sync/atomic"

// Board is the result area a worker publishes to when it has no control
// channel. Each channel is one word written atomically by the worker and
// readable from any goroutine. There is no consistency across channels: a
// reader may see the results of different cycles.
type Board struct {
	words []atomic.Uint32
}

func NewBoard(numChannels int) *Board {
	return &Board{
		words: make([]atomic.Uint32, numChannels),
	}
}

func (b *Board) Len() int {
	return len(b.words)
}

func (b *Board) Store(ch int, value uint16) {
	b.words[ch].Store(uint32(value))
}

func (b *Board) Load(ch int) uint16 {
	return uint16(b.words[ch].Load())
}

// Snapshot reads every channel once.
func (b *Board) Snapshot() []uint16 {
	result := make([]uint16, len(b.words))
	for ch := range b.words {
		result[ch] = b.Load(ch)
	}
	return result
}
