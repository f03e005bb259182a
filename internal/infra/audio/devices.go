package audio

import (
	"fmt"
	"strconv"
	"strings"

	"echoloop/internal/domain"
)

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Device is the driver-independent view of an audio device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

func (d Device) supports(dir Direction) bool {
	if dir == Output {
		return d.MaxOutputChannels >= 1
	}
	return d.MaxInputChannels >= 1
}

// ResolveDevice picks the device named by id for dir. id may be "default"
// (or empty), a numeric index, an exact name, or a case-insensitive
// substring such as "hw:1,0".
func ResolveDevice(devices []Device, id string, dir Direction) (Device, error) {
	id = strings.TrimSpace(id)

	if id == "" || strings.EqualFold(id, "default") {
		for _, d := range devices {
			if d.supports(dir) && ((dir == Input && d.IsDefaultInput) || (dir == Output && d.IsDefaultOutput)) {
				return d, nil
			}
		}
		return Device{}, &domain.DeviceError{Op: "resolve default " + dir.String(), Err: fmt.Errorf("no default device")}
	}

	if idx, err := strconv.Atoi(id); err == nil {
		for _, d := range devices {
			if d.Index == idx {
				if !d.supports(dir) {
					return Device{}, &domain.DeviceError{Op: "resolve " + dir.String(), Device: d.Name, Err: fmt.Errorf("device has no %s channels", dir)}
				}
				return d, nil
			}
		}
		return Device{}, &domain.DeviceError{Op: "resolve " + dir.String(), Device: id, Err: fmt.Errorf("no device with index %d", idx)}
	}

	for _, d := range devices {
		if d.Name == id && d.supports(dir) {
			return d, nil
		}
	}

	needle := strings.ToLower(id)
	for _, d := range devices {
		if d.supports(dir) && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}

	return Device{}, &domain.DeviceError{Op: "resolve " + dir.String(), Device: id, Err: fmt.Errorf("no matching device")}
}
