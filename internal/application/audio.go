package application

import (
	"context"

	"echoloop/internal/domain"
)

// AudioEngine owns one duplex stream and drives a BlockHandler from it.
type AudioEngine interface {
	Start(ctx context.Context, handler domain.BlockHandler) error
	Stop() error
	// Done is closed when the stream ends without Stop being called.
	Done() <-chan struct{}
	Stats() domain.StreamStats
	Name() string
}

// Detector is the wake-word classifier. Reset must be idempotent.
type Detector interface {
	Classify(block []int16) (bool, error)
	Reset()
}

type ChimeLoader interface {
	Load(path string) ([]int16, error)
}
