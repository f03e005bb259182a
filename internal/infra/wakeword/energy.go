// Package wakeword provides wake-phrase detectors that classify one PCM
// block at a time.
package wakeword

import (
	"fmt"
	"math"
	"time"

	"echoloop/internal/domain"
)

type EnergyConfig struct {
	SampleRate int
	// Normalized RMS (0..1) that opens an utterance.
	SpeechThreshold float64
	// Normalized RMS below which a block counts as silence once inside an
	// utterance. Lower than SpeechThreshold for hysteresis.
	SilenceThreshold float64
	MinSpeech        time.Duration
	MaxSpeech        time.Duration
	TrailingSilence  time.Duration
}

func DefaultEnergyConfig(sampleRate int) EnergyConfig {
	return EnergyConfig{
		SampleRate:       sampleRate,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		MinSpeech:        300 * time.Millisecond,
		MaxSpeech:        2 * time.Second,
		TrailingSilence:  300 * time.Millisecond,
	}
}

// EnergyDetector fires when it hears a short burst of speech (a wake phrase
// is 0.3 to 2 seconds) followed by a pause. It reports at most one detection
// until Reset.
type EnergyDetector struct {
	speechThreshold  float64
	silenceThreshold float64
	minSpeech        int
	maxSpeech        int
	trailing         int

	inSpeech bool
	overlong bool
	speech   int
	silence  int
	fired    bool
}

func NewEnergyDetector(cfg EnergyConfig) (*EnergyDetector, error) {
	if cfg.SampleRate <= 0 {
		return nil, &domain.ConfigError{Field: "wake.sample_rate", Msg: "must be positive"}
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold > 1 {
		return nil, &domain.ConfigError{Field: "wake.speech_threshold", Msg: fmt.Sprintf("must be in (0, 1], got %g", cfg.SpeechThreshold)}
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, &domain.ConfigError{Field: "wake.silence_threshold", Msg: "must be positive and not above speech_threshold"}
	}
	if cfg.MinSpeech < 0 || cfg.MaxSpeech <= cfg.MinSpeech {
		return nil, &domain.ConfigError{Field: "wake.max_speech", Msg: "must be greater than min_speech"}
	}
	if cfg.TrailingSilence <= 0 {
		return nil, &domain.ConfigError{Field: "wake.trailing_silence", Msg: "must be positive"}
	}

	samples := func(d time.Duration) int {
		return int(int64(d) * int64(cfg.SampleRate) / int64(time.Second))
	}
	return &EnergyDetector{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		minSpeech:        samples(cfg.MinSpeech),
		maxSpeech:        samples(cfg.MaxSpeech),
		trailing:         max(samples(cfg.TrailingSilence), 1),
	}, nil
}

func (d *EnergyDetector) Classify(block []int16) (bool, error) {
	if len(block) == 0 {
		return false, fmt.Errorf("%w: empty block", domain.ErrDetectorTransient)
	}
	if d.fired {
		return false, nil
	}

	level := rms(block)

	if !d.inSpeech {
		if d.overlong {
			// Wait for a pause before listening for a new phrase.
			if level < d.silenceThreshold {
				d.overlong = false
			}
			return false, nil
		}
		if level >= d.speechThreshold {
			d.inSpeech = true
			d.speech = len(block)
			d.silence = 0
		}
		return false, nil
	}

	if level >= d.silenceThreshold {
		d.speech += d.silence + len(block)
		d.silence = 0
		if d.speech > d.maxSpeech {
			// Too long for a wake phrase.
			d.inSpeech = false
			d.overlong = true
			d.speech = 0
		}
		return false, nil
	}

	d.silence += len(block)
	if d.silence < d.trailing {
		return false, nil
	}

	ok := d.speech >= d.minSpeech
	d.inSpeech = false
	d.speech = 0
	d.silence = 0
	if ok {
		d.fired = true
	}
	return ok, nil
}

// Reset rearms the detector. Calling it repeatedly is the same as calling
// it once.
func (d *EnergyDetector) Reset() {
	d.inSpeech = false
	d.overlong = false
	d.speech = 0
	d.silence = 0
	d.fired = false
}

func rms(block []int16) float64 {
	var sum float64
	for _, s := range block {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}
