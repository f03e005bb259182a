package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDevice            = errors.New("audio device error")
	ErrAsset             = errors.New("asset error")
	ErrConfig            = errors.New("invalid configuration")
	ErrDetectorTransient = errors.New("detector transient error")
)

// DeviceError reports a stream open or negotiation failure. Fatal at startup.
type DeviceError struct {
	Op     string
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	msg := "audio device: " + e.Op
	if e.Device != "" {
		msg += fmt.Sprintf(" %q", e.Device)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error        { return e.Err }
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// AssetError reports a chime that could not be loaded or resampled.
type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("asset %q", e.Path)
	}
	return fmt.Sprintf("asset %q: %v", e.Path, e.Err)
}

func (e *AssetError) Unwrap() error        { return e.Err }
func (e *AssetError) Is(target error) bool { return target == ErrAsset }

// ConfigError reports an invalid configuration field. Fatal at startup.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
