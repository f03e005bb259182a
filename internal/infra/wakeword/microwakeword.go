//go:build microwakeword
// +build microwakeword

package wakeword

import (
	"github.com/pmdroid/microwakeword"

	"echoloop/internal/domain"
)

// NewMicroWakeWord loads the builtin microWakeWord model called phrase, for
// example "okay_nabu". Models expect 16 kHz input.
func NewMicroWakeWord(phrase string, blockSize int) (*StreamingDetector, error) {
	model, err := microwakeword.FromBuiltin(phrase, microwakeword.DefaultRefractory)
	if err != nil {
		return nil, &domain.AssetError{Path: "microwakeword:" + phrase, Err: err}
	}
	return NewStreamingDetector(phrase, StreamingFunc(model.ProcessStreaming), blockSize), nil
}
