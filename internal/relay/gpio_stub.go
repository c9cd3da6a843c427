//go:build !linux

package relay

import "errors"

// LineActuator requires the Linux GPIO character device.
type LineActuator struct{}

func NewLineActuator(chipName string, offset int) (*LineActuator, error) {
	return nil, errors.New("gpio relay control requires linux")
}

func (a *LineActuator) Set(on bool) error { return errors.New("gpio unavailable") }

func (a *LineActuator) Close() error { return nil }
