package audio

import (
	"sync/atomic"

	"echoloop/internal/domain"
)

// Counters are updated from the audio thread with atomics only.
type Counters struct {
	blocks           atomic.Uint64
	inputUnderflows  atomic.Uint64
	inputOverflows   atomic.Uint64
	outputUnderflows atomic.Uint64
	outputOverflows  atomic.Uint64
}

func (c *Counters) Snapshot() domain.StreamStats {
	return domain.StreamStats{
		Blocks:           c.blocks.Load(),
		InputUnderflows:  c.inputUnderflows.Load(),
		InputOverflows:   c.inputOverflows.Load(),
		OutputUnderflows: c.outputUnderflows.Load(),
		OutputOverflows:  c.outputOverflows.Load(),
	}
}

// Deliver hands one block to h after applying the driver status: a missing
// input block is replaced by silence, every fault is counted, and the stream
// carries on. Whatever h leaves unwritten in out is zeroed.
func Deliver(h domain.BlockHandler, in, out []int16, status domain.StreamStatus, c *Counters) {
	if status&domain.StatusInputUnderflow != 0 {
		clear(in)
		c.inputUnderflows.Add(1)
	}
	if status&domain.StatusInputOverflow != 0 {
		c.inputOverflows.Add(1)
	}
	if status&domain.StatusOutputUnderflow != 0 {
		c.outputUnderflows.Add(1)
	}
	if status&domain.StatusOutputOverflow != 0 {
		c.outputOverflows.Add(1)
	}

	written := h.OnBlock(in, len(out), out)
	if n := len(written); n < len(out) {
		clear(out[n:])
	}
	c.blocks.Add(1)
}
