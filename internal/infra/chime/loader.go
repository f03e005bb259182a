// Package chime loads the acknowledgment sound played after a wake phrase.
package chime

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"echoloop/internal/domain"
	"echoloop/internal/infra/pcm"
)

// Loader decodes a chime once at startup, mixed down to mono and resampled
// to the stream rate.
type Loader struct {
	sampleRate int
	logger     *slog.Logger
}

func NewLoader(sampleRate int, logger *slog.Logger) *Loader {
	return &Loader{sampleRate: sampleRate, logger: logger}
}

func (l *Loader) Load(path string) ([]int16, error) {
	if path == "" {
		return nil, &domain.AssetError{Path: path, Err: errors.New("no chime path configured")}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &domain.AssetError{Path: path, Err: err}
	}

	samples, err := pcm.DecodeFile(path, l.sampleRate)
	if err != nil {
		return nil, &domain.AssetError{Path: path, Err: err}
	}
	if len(samples) == 0 {
		return nil, &domain.AssetError{Path: path, Err: fmt.Errorf("chime has no samples")}
	}

	l.logger.Info("chime loaded",
		"path", path,
		"samples", len(samples),
		"sampleRate", l.sampleRate,
	)
	return samples, nil
}
