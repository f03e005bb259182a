package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"echoloop/internal/domain"
)

// Appliance supervises the audio engine from outside the real-time path. It
// starts the stream, watches the machine between blocks, and stops the
// stream when ctx is done.
type Appliance struct {
	engine   AudioEngine
	machine  *Machine
	recorder Recorder
	logger   *slog.Logger
	poll     time.Duration

	mu      sync.Mutex
	running bool
	last    domain.Snapshot
	stream  domain.StreamStats
}

func NewAppliance(
	engine AudioEngine,
	machine *Machine,
	recorder Recorder,
	logger *slog.Logger,
	poll time.Duration,
) *Appliance {
	if recorder == nil {
		recorder = &NoopRecorder{}
	}
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &Appliance{
		engine:   engine,
		machine:  machine,
		recorder: recorder,
		logger:   logger,
		poll:     poll,
		last:     machine.Snapshot(),
	}
}

// Run blocks until ctx is cancelled or the engine finishes on its own. It
// returns ctx.Err() on cancellation and nil when the stream ran out.
func (a *Appliance) Run(ctx context.Context) error {
	a.logger.Info("starting audio engine", "engine", a.engine.Name())
	if err := a.engine.Start(ctx, a.machine); err != nil {
		return fmt.Errorf("starting audio engine: %w", err)
	}
	a.setRunning(true)
	defer func() {
		a.setRunning(false)
		if err := a.engine.Stop(); err != nil {
			a.logger.Error("stopping audio engine", "error", err)
		}
		a.observe()
	}()

	a.logger.Info("listening for wake phrase",
		"capture_samples", a.machine.CaptureSamples(),
	)

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.engine.Done():
			a.logger.Info("audio engine finished")
			return nil
		case <-ticker.C:
			a.observe()
		}
	}
}

func (a *Appliance) observe() {
	snap := a.machine.Snapshot()
	stream := a.engine.Stats()

	a.mu.Lock()
	prev, prevStream := a.last, a.stream
	a.last, a.stream = snap, stream
	a.mu.Unlock()

	if snap.Phase != prev.Phase || snap.Transitions != prev.Transitions {
		a.logger.Info("phase transition",
			"from", prev.Phase.String(),
			"to", snap.Phase.String(),
			"transitions", snap.Transitions-prev.Transitions,
			"cycles", snap.Cycles,
		)
	}
	if n := snap.DetectorErrors - prev.DetectorErrors; n > 0 {
		a.logger.Warn("detector errors, treated as no detection", "count", n)
	}
	if n := snap.CaptureFull - prev.CaptureFull; n > 0 {
		a.logger.Warn("capture buffer filled before the wall-clock deadline, audio is arriving faster than real time", "count", n)
	}
	if n := stream.InputUnderflows - prevStream.InputUnderflows; n > 0 {
		a.logger.Warn("input underflow, substituted silence", "blocks", n)
	}
	if n := stream.InputOverflows - prevStream.InputOverflows; n > 0 {
		a.logger.Warn("input overflow", "blocks", n)
	}
	if n := (stream.OutputUnderflows + stream.OutputOverflows) - (prevStream.OutputUnderflows + prevStream.OutputOverflows); n > 0 {
		a.logger.Warn("output timing fault", "blocks", n)
	}

	a.recorder.Observe(snap, stream)
}

func (a *Appliance) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

func (a *Appliance) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Status reports the machine and stream state as of the last poll.
func (a *Appliance) Status() domain.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.Status{
		Engine:  a.engine.Name(),
		Running: a.running,
		Machine: a.last,
		Stream:  a.stream,
	}
}
