package application

// CaptureBuffer accumulates recorded samples in storage sized up front, so
// appending from the audio callback never allocates.
type CaptureBuffer struct {
	samples []int16
}

func NewCaptureBuffer(capacity int) *CaptureBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &CaptureBuffer{samples: make([]int16, 0, capacity)}
}

// Append copies as much of block as still fits and returns the number of
// samples stored.
func (c *CaptureBuffer) Append(block []int16) int {
	n := len(block)
	if free := cap(c.samples) - len(c.samples); n > free {
		n = free
	}
	c.samples = append(c.samples, block[:n]...)
	return n
}

func (c *CaptureBuffer) Reset() {
	c.samples = c.samples[:0]
}

func (c *CaptureBuffer) Len() int { return len(c.samples) }

func (c *CaptureBuffer) Cap() int { return cap(c.samples) }

func (c *CaptureBuffer) Remaining() int { return cap(c.samples) - len(c.samples) }

// Samples returns the recorded samples. The slice aliases the buffer and is
// only valid until the next Reset.
func (c *CaptureBuffer) Samples() []int16 { return c.samples }
