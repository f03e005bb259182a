//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"echoloop/internal/domain"
)

// PortAudioEngine runs one full-duplex callback stream, mono int16 on both
// sides.
type PortAudioEngine struct {
	cfg    StreamConfig
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	handler  domain.BlockHandler
	running  bool
	counters Counters
	done     chan struct{}
}

func NewPortAudioEngine(cfg StreamConfig, logger *slog.Logger) *PortAudioEngine {
	return &PortAudioEngine{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (e *PortAudioEngine) Name() string {
	return "portaudio"
}

func (e *PortAudioEngine) Start(ctx context.Context, handler domain.BlockHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return &domain.DeviceError{Op: "initialize", Err: err}
	}

	devices, infos, err := listDevices()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	in, err := ResolveDevice(devices, e.cfg.InputDevice, Input)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	out, err := ResolveDevice(devices, e.cfg.OutputDevice, Output)
	if err != nil {
		portaudio.Terminate()
		return err
	}

	params := portaudio.LowLatencyParameters(infos[in.Index], infos[out.Index])
	params.Input.Channels = 1
	params.Output.Channels = 1
	params.SampleRate = float64(e.cfg.SampleRate)
	params.FramesPerBuffer = e.cfg.BlockSize

	e.handler = handler

	var stream *portaudio.Stream
	err = e.cfg.OpenWithRetry(ctx, fmt.Sprintf("%s -> %s", in.Name, out.Name), func() error {
		s, err := portaudio.OpenStream(params, e.callback)
		if err != nil {
			e.logger.Warn("opening duplex stream", "input", in.Name, "output", out.Name, "error", err)
			return err
		}
		if err := s.Start(); err != nil {
			s.Close()
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		portaudio.Terminate()
		return err
	}

	e.stream = stream
	e.running = true

	e.logger.Info("duplex stream started",
		"input", in.Name,
		"output", out.Name,
		"sampleRate", e.cfg.SampleRate,
		"blockSize", e.cfg.BlockSize,
		"blockPeriod", e.cfg.BlockPeriod().String(),
	)
	return nil
}

// callback runs on the portaudio real-time thread.
func (e *PortAudioEngine) callback(in, out []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	Deliver(e.handler, in, out, statusFromFlags(flags), &e.counters)
}

func statusFromFlags(flags portaudio.StreamCallbackFlags) domain.StreamStatus {
	var s domain.StreamStatus
	if flags&portaudio.InputUnderflow != 0 {
		s |= domain.StatusInputUnderflow
	}
	if flags&portaudio.InputOverflow != 0 {
		s |= domain.StatusInputOverflow
	}
	if flags&portaudio.OutputUnderflow != 0 {
		s |= domain.StatusOutputUnderflow
	}
	if flags&portaudio.OutputOverflow != 0 {
		s |= domain.StatusOutputOverflow
	}
	return s
}

func (e *PortAudioEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	var errs []error
	if err := e.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping stream: %w", err))
	}
	if err := e.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing stream: %w", err))
	}
	e.stream = nil
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminating portaudio: %w", err))
	}
	return errors.Join(errs...)
}

// Done never closes for a live device; the stream only ends through Stop.
func (e *PortAudioEngine) Done() <-chan struct{} {
	return e.done
}

func (e *PortAudioEngine) Stats() domain.StreamStats {
	return e.counters.Snapshot()
}

// ListDevices enumerates the devices portaudio can see.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &domain.DeviceError{Op: "initialize", Err: err}
	}
	defer portaudio.Terminate()
	devices, _, err := listDevices()
	return devices, err
}

func listDevices() ([]Device, []*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, nil, &domain.DeviceError{Op: "list devices", Err: err}
	}

	var defaultIn, defaultOut string
	if d, err := portaudio.DefaultInputDevice(); err == nil && d != nil {
		defaultIn = d.Name
	}
	if d, err := portaudio.DefaultOutputDevice(); err == nil && d != nil {
		defaultOut = d.Name
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		d := Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    info.Name == defaultIn,
			IsDefaultOutput:   info.Name == defaultOut,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices = append(devices, d)
	}
	return devices, infos, nil
}
