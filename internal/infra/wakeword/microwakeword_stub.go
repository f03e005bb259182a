//go:build !microwakeword
// +build !microwakeword

package wakeword

import "echoloop/internal/domain"

// NewMicroWakeWord stub when the microwakeword runtime is not built in
func NewMicroWakeWord(_ string, _ int) (*StreamingDetector, error) {
	return nil, &domain.ConfigError{
		Field: "wake.engine",
		Msg:   "microwakeword not available: rebuild with -tags microwakeword or use the energy engine",
	}
}
