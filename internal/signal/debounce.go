package signal

import (
	"fmt"
	"time"

	"sappump/internal/models"
)

// VoltageReader reads the instantaneous voltage on one ADC channel.
type VoltageReader interface {
	Voltage(c Channel) (float64, error)
}

// VacuumReader is optionally implemented by readers that also expose the
// vacuum-pressure channel.
type VacuumReader interface {
	VacuumVoltage() (float64, error)
}

// DebouncedSource samples a VoltageReader and votes noisy samples into
// stable booleans: each channel is read samples times with delay between
// reads, and reads true iff at least ceil(samples/2) voltages meet the
// threshold. The averaged voltage is reported alongside for observability.
type DebouncedSource struct {
	reader     VoltageReader
	thresholdV float64
	samples    int
	delay      time.Duration

	// sleep is injectable so tests do not wait on wall-clock delays.
	sleep func(time.Duration)
}

func NewDebouncedSource(reader VoltageReader, thresholdV float64, samples int, delay time.Duration) *DebouncedSource {
	if samples < 1 {
		samples = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &DebouncedSource{
		reader:     reader,
		thresholdV: thresholdV,
		samples:    samples,
		delay:      delay,
		sleep:      time.Sleep,
	}
}

// ReadSignals debounces every channel. The call is bounded: it sleeps at
// most (samples-1)*delay per channel and never blocks otherwise.
func (s *DebouncedSource) ReadSignals() (models.SignalSnapshot, error) {
	var snap models.SignalSnapshot
	for c := Channel(0); c < numChannels; c++ {
		votes := 0
		sum := 0.0
		for i := 0; i < s.samples; i++ {
			v, err := s.reader.Voltage(c)
			if err != nil {
				return models.SignalSnapshot{}, fmt.Errorf("read %s: %w", c, err)
			}
			sum += v
			if v >= s.thresholdV {
				votes++
			}
			if i+1 < s.samples && s.delay > 0 {
				s.sleep(s.delay)
			}
		}
		high := votes >= (s.samples+1)/2
		setChannel(&snap, c, high, sum/float64(s.samples))
	}

	if vr, ok := s.reader.(VacuumReader); ok {
		v, err := vr.VacuumVoltage()
		if err == nil {
			snap.VacuumVolts = &v
		}
	}
	return snap, nil
}
