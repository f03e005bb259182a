package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"echoloop/internal/domain"
)

type Config struct {
	Audio  AudioConfig  `yaml:"audio"`
	Wake   WakeConfig   `yaml:"wake"`
	Chime  ChimeConfig  `yaml:"chime"`
	Status StatusConfig `yaml:"status"`
	Log    LogConfig    `yaml:"log"`
}

type AudioConfig struct {
	Engine          string     `yaml:"engine"`
	SampleRate      int        `yaml:"sample_rate"`
	BlockSize       int        `yaml:"block_size"`
	Format          string     `yaml:"format"`
	InputDevice     string     `yaml:"input_device"`
	OutputDevice    string     `yaml:"output_device"`
	CaptureDuration string     `yaml:"capture_duration"`
	DeadlineMode    string     `yaml:"deadline_mode"`
	OpenAttempts    int        `yaml:"open_attempts"`
	File            FileConfig `yaml:"file"`
}

type FileConfig struct {
	Input    string `yaml:"input"`
	Output   string `yaml:"output"`
	Tail     string `yaml:"tail"`
	Realtime bool   `yaml:"realtime"`
}

// WakeConfig selects the wake detector. Phrase names the microwakeword
// model; the energy fields only apply to the energy engine.
type WakeConfig struct {
	Engine           string  `yaml:"engine"`
	Phrase           string  `yaml:"phrase"`
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	MinSpeech        string  `yaml:"min_speech"`
	MaxSpeech        string  `yaml:"max_speech"`
	TrailingSilence  string  `yaml:"trailing_silence"`
}

type ChimeConfig struct {
	Path string `yaml:"path"`
}

type StatusConfig struct {
	Addr         string `yaml:"addr"`
	PollInterval string `yaml:"poll_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Audio.Engine == "" {
		c.Audio.Engine = "portaudio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = 512
	}
	if c.Audio.Format == "" {
		c.Audio.Format = "s16"
	}
	if c.Audio.InputDevice == "" {
		c.Audio.InputDevice = "default"
	}
	if c.Audio.OutputDevice == "" {
		c.Audio.OutputDevice = "default"
	}
	if c.Audio.CaptureDuration == "" {
		c.Audio.CaptureDuration = "3s"
	}
	if c.Audio.DeadlineMode == "" {
		c.Audio.DeadlineMode = string(domain.DeadlineSamples)
	}
	if c.Audio.OpenAttempts == 0 {
		c.Audio.OpenAttempts = 3
	}
	if c.Audio.File.Tail == "" {
		c.Audio.File.Tail = "5s"
	}
	if c.Wake.Engine == "" {
		c.Wake.Engine = "microwakeword"
	}
	if c.Wake.Phrase == "" {
		c.Wake.Phrase = "okay_nabu"
	}
	if c.Wake.SpeechThreshold == 0 {
		c.Wake.SpeechThreshold = 0.015
	}
	if c.Wake.SilenceThreshold == 0 {
		c.Wake.SilenceThreshold = 0.008
	}
	if c.Wake.MinSpeech == "" {
		c.Wake.MinSpeech = "300ms"
	}
	if c.Wake.MaxSpeech == "" {
		c.Wake.MaxSpeech = "2s"
	}
	if c.Wake.TrailingSilence == "" {
		c.Wake.TrailingSilence = "300ms"
	}
	if c.Chime.Path == "" {
		c.Chime.Path = "success.wav"
	}
	if c.Status.PollInterval == "" {
		c.Status.PollInterval = "100ms"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the first invalid field as a *domain.ConfigError.
func (c *Config) Validate() error {
	switch c.Audio.Engine {
	case "portaudio", "file":
	default:
		return &domain.ConfigError{Field: "audio.engine", Msg: fmt.Sprintf("unknown engine %q (want portaudio or file)", c.Audio.Engine)}
	}
	if c.Audio.SampleRate <= 0 {
		return &domain.ConfigError{Field: "audio.sample_rate", Msg: "must be positive"}
	}
	if c.Audio.BlockSize <= 0 {
		return &domain.ConfigError{Field: "audio.block_size", Msg: "must be positive"}
	}
	if !strings.EqualFold(c.Audio.Format, "s16") && !strings.EqualFold(c.Audio.Format, "int16") {
		return &domain.ConfigError{Field: "audio.format", Msg: fmt.Sprintf("unsupported format %q (only s16)", c.Audio.Format)}
	}
	if d, err := parseDuration("audio.capture_duration", c.Audio.CaptureDuration); err != nil {
		return err
	} else if d <= 0 {
		return &domain.ConfigError{Field: "audio.capture_duration", Msg: "must be positive"}
	}
	switch domain.DeadlineMode(c.Audio.DeadlineMode) {
	case domain.DeadlineSamples, domain.DeadlineWallClock:
	default:
		return &domain.ConfigError{Field: "audio.deadline_mode", Msg: fmt.Sprintf("unknown mode %q (want samples or wallclock)", c.Audio.DeadlineMode)}
	}
	if c.Audio.OpenAttempts < 0 {
		return &domain.ConfigError{Field: "audio.open_attempts", Msg: "must not be negative"}
	}
	if c.Audio.Engine == "file" && c.Audio.File.Input == "" {
		return &domain.ConfigError{Field: "audio.file.input", Msg: "required for the file engine"}
	}
	if c.Audio.Engine == "file" && !c.Audio.File.Realtime && domain.DeadlineMode(c.Audio.DeadlineMode) == domain.DeadlineWallClock {
		return &domain.ConfigError{Field: "audio.deadline_mode", Msg: "wallclock needs audio.file.realtime with the file engine"}
	}
	if _, err := parseDuration("audio.file.tail", c.Audio.File.Tail); err != nil {
		return err
	}

	switch c.Wake.Engine {
	case "microwakeword":
		if c.Audio.SampleRate != 16000 {
			return &domain.ConfigError{Field: "audio.sample_rate", Msg: fmt.Sprintf("microwakeword models need 16000 Hz, got %d", c.Audio.SampleRate)}
		}
	case "energy":
	default:
		return &domain.ConfigError{Field: "wake.engine", Msg: fmt.Sprintf("unknown engine %q (want microwakeword or energy)", c.Wake.Engine)}
	}
	for _, d := range []struct{ field, value string }{
		{"wake.min_speech", c.Wake.MinSpeech},
		{"wake.max_speech", c.Wake.MaxSpeech},
		{"wake.trailing_silence", c.Wake.TrailingSilence},
	} {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}

	if _, err := parseDuration("status.poll_interval", c.Status.PollInterval); err != nil {
		return err
	}
	return nil
}

// Capture is the configured capture length.
func (a AudioConfig) Capture() time.Duration {
	d, _ := time.ParseDuration(a.CaptureDuration)
	return d
}

// CaptureSamples is the capture length in samples, rounded up.
func (a AudioConfig) CaptureSamples() int {
	d := a.Capture()
	if d <= 0 || a.SampleRate <= 0 {
		return 0
	}
	return int((int64(d)*int64(a.SampleRate) + int64(time.Second) - 1) / int64(time.Second))
}

// RecordedSamples is what one capture actually records: the smallest
// multiple of the block size that covers CaptureSamples.
func (a AudioConfig) RecordedSamples() int {
	if a.BlockSize <= 0 {
		return 0
	}
	n := a.CaptureSamples()
	return (n + a.BlockSize - 1) / a.BlockSize * a.BlockSize
}

func (a AudioConfig) BlockPeriod() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.BlockSize) * time.Second / time.Duration(a.SampleRate)
}

func (f FileConfig) TailDuration() time.Duration {
	d, _ := time.ParseDuration(f.Tail)
	return d
}

func (w WakeConfig) Durations() (minSpeech, maxSpeech, trailing time.Duration) {
	minSpeech, _ = time.ParseDuration(w.MinSpeech)
	maxSpeech, _ = time.ParseDuration(w.MaxSpeech)
	trailing, _ = time.ParseDuration(w.TrailingSilence)
	return minSpeech, maxSpeech, trailing
}

func (s StatusConfig) Poll() time.Duration {
	d, _ := time.ParseDuration(s.PollInterval)
	return d
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &domain.ConfigError{Field: field, Msg: fmt.Sprintf("invalid duration %q", v)}
	}
	return d, nil
}
