package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"echoloop/config"
	"echoloop/internal/application"
	"echoloop/internal/domain"
	"echoloop/internal/infra/audio"
	"echoloop/internal/infra/chime"
	"echoloop/internal/infra/metrics"
	"echoloop/internal/infra/status"
	"echoloop/internal/infra/wakeword"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Listen for the wake phrase and echo what follows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func run(cfg *config.Config) error {
	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	var loader application.ChimeLoader = chime.NewLoader(cfg.Audio.SampleRate, logger)
	chimeSamples, err := loader.Load(cfg.Chime.Path)
	if err != nil {
		return err
	}

	detector, err := createDetector(cfg, logger)
	if err != nil {
		return err
	}

	machine, err := application.NewMachine(application.MachineConfig{
		SampleRate:      cfg.Audio.SampleRate,
		BlockSize:       cfg.Audio.BlockSize,
		CaptureDuration: cfg.Audio.Capture(),
		DeadlineMode:    domain.DeadlineMode(cfg.Audio.DeadlineMode),
	}, detector, chimeSamples)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewMetrics(reg)

	engine := createEngine(cfg.Audio, logger)
	appliance := application.NewAppliance(engine, machine, m, logger, cfg.Status.Poll())

	logger.Info("starting echoloop",
		"engine", engine.Name(),
		"sample_rate", cfg.Audio.SampleRate,
		"block_size", cfg.Audio.BlockSize,
		"block_period", cfg.Audio.BlockPeriod(),
		"capture", cfg.Audio.Capture(),
		"deadline_mode", cfg.Audio.DeadlineMode,
		"wake_engine", cfg.Wake.Engine,
		"wake_phrase", cfg.Wake.Phrase,
	)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		// A finished file run ends the process, status server included.
		defer stop()
		return appliance.Run(runCtx)
	})

	if cfg.Status.Addr != "" {
		server := status.NewServer(cfg.Status.Addr, appliance, m.Handler(), logger)
		g.Go(func() error {
			return server.Run(runCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("echoloop error", "error", err)
		return err
	}
	return nil
}

func createDetector(cfg *config.Config, logger *slog.Logger) (application.Detector, error) {
	if cfg.Wake.Engine == "microwakeword" {
		detector, err := wakeword.NewMicroWakeWord(cfg.Wake.Phrase, cfg.Audio.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("creating wake detector: %w", err)
		}
		logger.Info("wake model loaded", "engine", cfg.Wake.Engine, "phrase", cfg.Wake.Phrase)
		return detector, nil
	}

	logger.Warn("using energy wake detector, any short burst of speech will trigger", "threshold", cfg.Wake.SpeechThreshold)
	ec := wakeword.DefaultEnergyConfig(cfg.Audio.SampleRate)
	ec.SpeechThreshold = cfg.Wake.SpeechThreshold
	ec.SilenceThreshold = cfg.Wake.SilenceThreshold
	ec.MinSpeech, ec.MaxSpeech, ec.TrailingSilence = cfg.Wake.Durations()

	detector, err := wakeword.NewEnergyDetector(ec)
	if err != nil {
		return nil, fmt.Errorf("creating wake detector: %w", err)
	}
	return detector, nil
}

func createEngine(cfg config.AudioConfig, logger *slog.Logger) application.AudioEngine {
	stream := audio.StreamConfig{
		SampleRate:   cfg.SampleRate,
		BlockSize:    cfg.BlockSize,
		InputDevice:  cfg.InputDevice,
		OutputDevice: cfg.OutputDevice,
		OpenAttempts: cfg.OpenAttempts,
	}

	switch cfg.Engine {
	case "file":
		return audio.NewFileEngine(stream, audio.FileConfig{
			Input:    cfg.File.Input,
			Output:   cfg.File.Output,
			Tail:     cfg.File.TailDuration(),
			Realtime: cfg.File.Realtime,
		}, logger)
	default:
		return audio.NewPortAudioEngine(stream, logger)
	}
}
