package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"echoloop/internal/domain"
	"echoloop/internal/infra/pcm"
)

type FileConfig struct {
	Input  string
	Output string
	// Tail is silence fed after the input so a late cycle can finish.
	Tail time.Duration
	// Realtime paces blocks at the stream's block period.
	Realtime bool
}

// FileEngine runs the handler offline: microphone input comes from a WAV or
// MP3 file and the output stream is written to a WAV file.
type FileEngine struct {
	stream StreamConfig
	cfg    FileConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	finished chan struct{}
	done     chan struct{}
	err      error
	counters Counters
}

func NewFileEngine(stream StreamConfig, cfg FileConfig, logger *slog.Logger) *FileEngine {
	return &FileEngine{
		stream: stream,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (f *FileEngine) Name() string {
	return "file"
}

func (f *FileEngine) Start(ctx context.Context, handler domain.BlockHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil
	}
	if f.finished != nil {
		return &domain.DeviceError{Op: "open input file", Device: f.cfg.Input, Err: fmt.Errorf("file stream already consumed")}
	}
	if f.stream.BlockSize <= 0 || f.stream.SampleRate <= 0 {
		return &domain.DeviceError{Op: "configure file stream", Err: fmt.Errorf("invalid block size %d or sample rate %d", f.stream.BlockSize, f.stream.SampleRate)}
	}

	samples, err := pcm.DecodeFile(f.cfg.Input, f.stream.SampleRate)
	if err != nil {
		return &domain.DeviceError{Op: "open input file", Device: f.cfg.Input, Err: err}
	}

	block := f.stream.BlockSize
	tail := int(int64(f.cfg.Tail) * int64(f.stream.SampleRate) / int64(time.Second))
	total := (len(samples) + tail + block - 1) / block * block

	input := make([]int16, total)
	copy(input, samples)
	output := make([]int16, total)

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.finished = make(chan struct{})
	f.running = true

	f.logger.Info("file stream started",
		"input", f.cfg.Input,
		"output", f.cfg.Output,
		"blocks", total/block,
		"realtime", f.cfg.Realtime,
	)

	go f.run(runCtx, handler, input, output)
	return nil
}

func (f *FileEngine) run(ctx context.Context, h domain.BlockHandler, input, output []int16) {
	defer close(f.finished)

	block := f.stream.BlockSize
	in := make([]int16, block)
	out := make([]int16, block)

	var tick <-chan time.Time
	if f.cfg.Realtime {
		ticker := time.NewTicker(f.stream.BlockPeriod())
		defer ticker.Stop()
		tick = ticker.C
	}

	for off := 0; off < len(input); off += block {
		// Stop is only observed between blocks.
		select {
		case <-ctx.Done():
			f.finish(output[:off])
			return
		default:
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				f.finish(output[:off])
				return
			case <-tick:
			}
		}

		copy(in, input[off:off+block])
		Deliver(h, in, out, 0, &f.counters)
		copy(output[off:off+block], out)
	}

	f.finish(output)
	close(f.done)
}

func (f *FileEngine) finish(output []int16) {
	if f.cfg.Output == "" {
		return
	}
	if err := pcm.WriteWAVFile(f.cfg.Output, output, f.stream.SampleRate); err != nil {
		f.logger.Error("writing output file", "path", f.cfg.Output, "error", err)
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		return
	}
	f.logger.Info("output written", "path", f.cfg.Output, "samples", len(output))
}

func (f *FileEngine) Stop() error {
	f.mu.Lock()
	if !f.running {
		err := f.err
		f.mu.Unlock()
		return err
	}
	f.running = false
	cancel, finished := f.cancel, f.finished
	f.mu.Unlock()

	cancel()
	<-finished

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *FileEngine) Done() <-chan struct{} {
	return f.done
}

func (f *FileEngine) Stats() domain.StreamStats {
	return f.counters.Snapshot()
}
