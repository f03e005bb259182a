//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"errors"
	"log/slog"

	"echoloop/internal/domain"
)

var errNoPortAudio = errors.New("portaudio engine not available: rebuild with -tags portaudio")

// PortAudioEngine stub when portaudio is not available
type PortAudioEngine struct {
	logger *slog.Logger
	done   chan struct{}
}

func NewPortAudioEngine(_ StreamConfig, logger *slog.Logger) *PortAudioEngine {
	return &PortAudioEngine{logger: logger, done: make(chan struct{})}
}

func (e *PortAudioEngine) Name() string {
	return "portaudio"
}

func (e *PortAudioEngine) Start(_ context.Context, _ domain.BlockHandler) error {
	return &domain.DeviceError{Op: "open duplex stream", Err: errNoPortAudio}
}

func (e *PortAudioEngine) Stop() error {
	return nil
}

func (e *PortAudioEngine) Done() <-chan struct{} {
	return e.done
}

func (e *PortAudioEngine) Stats() domain.StreamStats {
	return domain.StreamStats{}
}

func ListDevices() ([]Device, error) {
	return nil, &domain.DeviceError{Op: "list devices", Err: errNoPortAudio}
}
