package audio

import (
	"context"
	"errors"
	"time"

	"echoloop/internal/domain"
	"echoloop/internal/infra"
)

// StreamConfig is the fixed stream shape shared by every engine.
type StreamConfig struct {
	SampleRate   int
	BlockSize    int
	InputDevice  string
	OutputDevice string
	OpenAttempts int
}

func (c StreamConfig) BlockPeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// OpenWithRetry calls open up to OpenAttempts times (the retry default when
// unset) with backoff. The last failure comes back as a *domain.DeviceError
// naming device; cancellation is returned as is.
func (c StreamConfig) OpenWithRetry(ctx context.Context, device string, open func() error) error {
	retry := infra.DefaultRetryConfig()
	if c.OpenAttempts > 0 {
		retry.MaxAttempts = c.OpenAttempts
	}
	err := infra.WithRetry(ctx, retry, open)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.DeviceError{Op: "open duplex stream", Device: device, Err: err}
}
