//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// LineActuator drives the relay through a Linux GPIO character device line.
type LineActuator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewLineActuator requests the output line and drives it LOW immediately:
// the relay must be OFF at process start regardless of prior line state.
func NewLineActuator(chipName string, offset int) (*LineActuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay line %d: %w", offset, err)
	}

	return &LineActuator{chip: chip, line: line}, nil
}

func (a *LineActuator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := a.line.SetValue(v); err != nil {
		return fmt.Errorf("set relay line: %w", err)
	}
	return nil
}

// Close drives the line LOW, reconfigures it back to an input so the pin
// floats safe across reboots, and releases the handle.
func (a *LineActuator) Close() error {
	var errs []error
	if a.line != nil {
		if err := a.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("force relay off: %w", err))
		}
		if err := a.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay line: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("relay close errors: %v", errs)
	}
	return nil
}
