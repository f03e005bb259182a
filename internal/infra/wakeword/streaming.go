package wakeword

import (
	"encoding/binary"
	"fmt"

	"echoloop/internal/domain"
)

// StreamingModel is a keyword model fed 16-bit little-endian mono PCM in
// arbitrary chunk sizes.
type StreamingModel interface {
	ProcessStreaming(pcm []byte) (bool, error)
}

// StreamingFunc adapts a ProcessStreaming method value to StreamingModel.
type StreamingFunc func(pcm []byte) (bool, error)

func (f StreamingFunc) ProcessStreaming(pcm []byte) (bool, error) { return f(pcm) }

// StreamingDetector runs a keyword model block by block. The byte buffer is
// sized for the configured block up front, so Classify only allocates if it
// is handed a larger block. It reports at most one detection until Reset.
type StreamingDetector struct {
	model StreamingModel
	name  string
	buf   []byte
	fired bool
}

func NewStreamingDetector(name string, model StreamingModel, blockSize int) *StreamingDetector {
	return &StreamingDetector{
		model: model,
		name:  name,
		buf:   make([]byte, 2*max(blockSize, 0)),
	}
}

func (d *StreamingDetector) Name() string {
	return d.name
}

func (d *StreamingDetector) Classify(block []int16) (bool, error) {
	if len(block) == 0 {
		return false, fmt.Errorf("%w: empty block", domain.ErrDetectorTransient)
	}

	if n := 2 * len(block); n > cap(d.buf) {
		d.buf = make([]byte, n)
	}
	pcm := d.buf[:2*len(block)]
	for i, s := range block {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}

	// The model keeps streaming state, so it is fed even after a detection.
	detected, err := d.model.ProcessStreaming(pcm)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrDetectorTransient, d.name, err)
	}
	if d.fired || !detected {
		return false, nil
	}
	d.fired = true
	return true, nil
}

func (d *StreamingDetector) Reset() {
	d.fired = false
}
